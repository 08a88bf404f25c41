// Package credentials provides the bearer credential stores the session watches.
package credentials

import (
	"context"
	"errors"
	"sync"
)

var ErrEmptyCredential = errors.New("credential is empty")

// Change reports the credential after a write, local or from another process.
type Change struct {
	Credential string
	Present    bool
}

// Store is durable storage for the single bearer credential.
type Store interface {
	// Get returns the current credential; ok is false when none is stored.
	Get(ctx context.Context) (credential string, ok bool, err error)
	Set(ctx context.Context, credential string) error
	Clear(ctx context.Context) error
	// Watch delivers a Change each time the stored credential changes, until ctx is done.
	Watch(ctx context.Context) (<-chan Change, error)
}

const watchBuffer = 8

// notifier fans changes out to watchers. A slow watcher loses its oldest pending change.
type notifier struct {
	mu       sync.Mutex
	watchers map[chan Change]struct{}
}

func (n *notifier) add(ctx context.Context) <-chan Change {
	ch := make(chan Change, watchBuffer)

	n.mu.Lock()
	if n.watchers == nil {
		n.watchers = make(map[chan Change]struct{})
	}

	n.watchers[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()

		n.mu.Lock()
		delete(n.watchers, ch)
		close(ch)
		n.mu.Unlock()
	}()

	return ch
}

func (n *notifier) notify(change Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.watchers {
		push(ch, change)
	}
}

func push(ch chan Change, change Change) {
	for {
		select {
		case ch <- change:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}

// Memory is an in-process Store.
type Memory struct {
	notifier

	mu         sync.RWMutex
	credential string
}

// NewMemory returns a Memory store holding credential, empty for none.
func NewMemory(credential string) *Memory {
	return &Memory{credential: credential}
}

func (m *Memory) Get(context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.credential, m.credential != "", nil
}

func (m *Memory) Set(_ context.Context, credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}

	m.update(credential)

	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.update("")

	return nil
}

func (m *Memory) Watch(ctx context.Context) (<-chan Change, error) {
	return m.add(ctx), nil
}

func (m *Memory) update(credential string) {
	m.mu.Lock()
	changed := m.credential != credential
	m.credential = credential
	m.mu.Unlock()

	if changed {
		m.notify(Change{Credential: credential, Present: credential != ""})
	}
}
