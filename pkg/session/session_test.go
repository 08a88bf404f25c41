package session_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowbot/pkg/backend"
	"github.com/dukex/flowbot/pkg/channel"
	"github.com/dukex/flowbot/pkg/credentials"
	"github.com/dukex/flowbot/pkg/dispatcher"
	"github.com/dukex/flowbot/pkg/models"
	"github.com/dukex/flowbot/pkg/rules"
	"github.com/dukex/flowbot/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu          sync.Mutex
	state       channel.State
	states      chan channel.StateChange
	connects    []string
	disconnects []string
	epoch       uint64
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{state: channel.StateDisconnected, states: make(chan channel.StateChange, 64)}
}

func (c *fakeChannel) Connect(_ context.Context, credential string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connects = append(c.connects, credential)
	c.epoch++
	c.setLocked(channel.StateConnecting, "credential present")
	c.setLocked(channel.StateConnected, "handshake succeeded")

	return nil
}

func (c *fakeChannel) Disconnect(_ context.Context, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnects = append(c.disconnects, reason)
	c.epoch++
	c.setLocked(channel.StateDisconnected, reason)
}

func (c *fakeChannel) IsCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return epoch == 0 || epoch == c.epoch
}

func (c *fakeChannel) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.epoch
}

func (c *fakeChannel) StateChanges() <-chan channel.StateChange {
	return c.states
}

func (c *fakeChannel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *fakeChannel) emit(to channel.State, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(to, reason)
}

func (c *fakeChannel) setLocked(to channel.State, reason string) {
	if c.state == to {
		return
	}

	c.states <- channel.StateChange{From: c.state, To: to, Reason: reason, At: time.Now()}
	c.state = to
}

func (c *fakeChannel) connectCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.connects...)
}

func (c *fakeChannel) disconnectReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.disconnects...)
}

type fakeFetcher struct {
	mu         sync.Mutex
	flows      []models.Flow
	templates  []models.Template
	flowErrs   []error
	flowCalls  int
	gate       chan struct{}
	gateCalls  int
	gateNotify chan struct{}
}

func (f *fakeFetcher) FetchFlows(ctx context.Context) ([]models.Flow, error) {
	f.mu.Lock()
	f.flowCalls++
	call := f.flowCalls
	gate := f.gate

	var err error
	if len(f.flowErrs) > 0 {
		err = f.flowErrs[0]
		if len(f.flowErrs) > 1 {
			f.flowErrs = f.flowErrs[1:]
		}
	}

	flows := append([]models.Flow(nil), f.flows...)
	f.mu.Unlock()

	if gate != nil && call == 1 {
		if f.gateNotify != nil {
			close(f.gateNotify)
		}

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	return flows, nil
}

func (f *fakeFetcher) FetchTemplates(context.Context) ([]models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.Template(nil), f.templates...), nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.flowCalls
}

func greeting(id string) models.Flow {
	return models.Flow{
		ID:       id,
		IsActive: true,
		TriggerRule: models.TriggerRule{
			TriggerType: models.TriggerTypeKeyword,
			Keywords:    []string{"hello"},
		},
		Nodes: []models.FlowNode{{
			ID:     "start-1",
			Type:   models.NodeTypeStart,
			Config: models.StartConfig{Content: "Welcome!"},
		}},
	}
}

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SettleDelay = time.Millisecond
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.FetchTimeout = time.Second

	return cfg
}

type harness struct {
	session *session.EngineSession
	channel *fakeChannel
	fetcher *fakeFetcher
	creds   *credentials.Memory
	store   *rules.Store
}

func newHarness(t *testing.T, credential string, fetcher *fakeFetcher) *harness {
	t.Helper()

	h := &harness{
		channel: newFakeChannel(),
		fetcher: fetcher,
		creds:   credentials.NewMemory(credential),
		store:   rules.NewStore(),
	}

	h.session = session.New(testConfig(), h.creds, h.channel, h.fetcher, h.store, slog.New(slog.DiscardHandler))

	require.NoError(t, h.session.Start(context.Background()))
	t.Cleanup(func() { _ = h.session.Stop(context.Background()) })

	return h
}

func (h *harness) flowCount() int {
	return len(h.store.Load().Rules)
}

func eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()

	require.Eventually(t, condition, 2*time.Second, 5*time.Millisecond, msg)
}

func TestSession_LoadsRulesOnConnect(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		flows:     []models.Flow{greeting("F1"), {ID: "draft"}},
		templates: []models.Template{{ID: "T1", Type: models.TemplateTypeText}},
	}
	h := newHarness(t, "token", fetcher)

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	assert.Equal(t, []string{"token"}, h.channel.connectCalls())

	status := h.session.Status()
	assert.Equal(t, channel.StateConnected, status.State)
	assert.True(t, status.CredentialPresent)
	assert.Equal(t, 1, status.Flows)
	assert.Equal(t, 1, status.Templates)
	assert.False(t, status.LastReload.IsZero())
}

func TestSession_WaitsForLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", &fakeFetcher{flows: []models.Flow{greeting("F1")}})

	assert.Empty(t, h.channel.connectCalls())
	assert.Equal(t, channel.StateDisconnected, h.session.Status().State)

	require.NoError(t, h.creds.Set(context.Background(), "token"))

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded after login")
	assert.Equal(t, []string{"token"}, h.channel.connectCalls())
}

func TestSession_CredentialRemovedClearsEverything(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "token", &fakeFetcher{flows: []models.Flow{greeting("F1")}})
	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	h.session.Observe(context.Background(), dispatcher.Result{
		Event:   models.InboundEvent{ChatID: "chat-1", Direction: models.DirectionIncoming, Body: models.EventBody{Text: models.StringPtr("hello")}},
		Outcome: dispatcher.OutcomeNoMatch,
	})
	require.Len(t, h.session.Messages(""), 1)

	require.NoError(t, h.creds.Clear(context.Background()))

	eventually(t, func() bool { return h.channel.State() == channel.StateDisconnected }, "channel not disconnected")
	eventually(t, func() bool { return h.flowCount() == 0 }, "rules not cleared")

	assert.Equal(t, []string{"credential removed"}, h.channel.disconnectReasons())
	assert.Empty(t, h.session.Messages(""))
	assert.False(t, h.session.Status().CredentialPresent)

	sender := &countingSender{}
	d := dispatcher.New(h.store, rules.NewMatcher(""), sender, slog.New(slog.DiscardHandler))
	result := d.Handle(context.Background(), models.InboundEvent{
		ChatID:    "chat-1",
		Direction: models.DirectionIncoming,
		Body:      models.EventBody{Text: models.StringPtr("hello")},
	})

	assert.Equal(t, dispatcher.OutcomeNoMatch, result.Outcome)
	assert.Zero(t, sender.count())
}

type countingSender struct {
	mu    sync.Mutex
	sends int
}

func (s *countingSender) Send(context.Context, string, models.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sends++

	return nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sends
}

func TestSession_DisconnectKeepsRulesClearsMessages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "token", &fakeFetcher{flows: []models.Flow{greeting("F1")}})
	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	h.session.Observe(context.Background(), dispatcher.Result{
		Event:   models.InboundEvent{ChatID: "chat-1", Direction: models.DirectionIncoming},
		Outcome: dispatcher.OutcomeIgnoredEmpty,
	})

	h.channel.emit(channel.StateReconnecting, "transport dropped")
	h.channel.emit(channel.StateDisconnected, "reconnect attempts exhausted")

	eventually(t, func() bool { return len(h.session.Messages("")) == 0 }, "messages not cleared")
	assert.Equal(t, 1, h.flowCount())
}

func TestSession_RetriesTransientFetchOnce(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		flows:    []models.Flow{greeting("F1")},
		flowErrs: []error{fmt.Errorf("gateway timeout: %w", backend.ErrTransient), nil},
	}
	h := newHarness(t, "token", fetcher)

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded after retry")
	assert.Equal(t, 2, fetcher.calls())
}

func TestSession_KeepsPreviousSnapshotOnRepeatedFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{flowErrs: []error{fmt.Errorf("down: %w", backend.ErrTransient)}}

	creds := credentials.NewMemory("token")
	store := rules.NewStore()
	previous := rules.Build([]models.Flow{greeting("stale")}, nil)
	store.Publish(previous)

	ch := newFakeChannel()
	s := session.New(testConfig(), creds, ch, fetcher, store, slog.New(slog.DiscardHandler))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	eventually(t, func() bool { return fetcher.calls() == 2 }, "fetch not retried")

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, fetcher.calls(), "retried exactly once")
	assert.Same(t, previous, store.Load())
	assert.Contains(t, s.Status().LastError, "down")
}

func TestSession_PermanentFetchErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{flowErrs: []error{errors.New("unauthorized")}}
	h := newHarness(t, "token", fetcher)

	eventually(t, func() bool { return h.session.Status().LastError != "" }, "failure not recorded")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fetcher.calls())
}

func TestSession_DiscardsSupersededFetch(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		flows:      []models.Flow{greeting("F1")},
		gate:       make(chan struct{}),
		gateNotify: make(chan struct{}),
	}
	h := newHarness(t, "token", fetcher)

	select {
	case <-fetcher.gateNotify:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not start")
	}

	require.NoError(t, h.creds.Clear(context.Background()))
	eventually(t, func() bool { return h.channel.State() == channel.StateDisconnected }, "not disconnected")

	close(fetcher.gate)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.flowCount(), "late fetch result was applied")
}

func TestSession_NewCredentialStartsOver(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{flows: []models.Flow{greeting("F1")}}
	h := newHarness(t, "user-a", fetcher)

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	h.session.Observe(context.Background(), dispatcher.Result{
		Event:   models.InboundEvent{ChatID: "chat-1", Direction: models.DirectionIncoming},
		Outcome: dispatcher.OutcomeNoMatch,
	})

	require.NoError(t, h.creds.Set(context.Background(), "user-b"))

	eventually(t, func() bool {
		calls := h.channel.connectCalls()

		return len(calls) == 2 && calls[1] == "user-b"
	}, "not reconnected with new credential")

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not reloaded for new user")
	assert.Empty(t, h.session.Messages(""))
}

func TestSession_Reload(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{flows: []models.Flow{greeting("F1")}}
	h := newHarness(t, "token", fetcher)

	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	fetcher.mu.Lock()
	fetcher.flows = append(fetcher.flows, greeting("F2"))
	fetcher.mu.Unlock()

	require.NoError(t, h.session.Reload(context.Background()))
	assert.Equal(t, 2, h.flowCount())
}

func TestSession_ReloadReconnectsDisconnectedChannel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "token", &fakeFetcher{flows: []models.Flow{greeting("F1")}})
	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	h.channel.emit(channel.StateReconnecting, "transport dropped")
	h.channel.emit(channel.StateDisconnected, "reconnect attempts exhausted")
	eventually(t, func() bool { return h.session.Status().State == channel.StateDisconnected }, "not disconnected")

	require.NoError(t, h.session.Reload(context.Background()))

	assert.Equal(t, []string{"token", "token"}, h.channel.connectCalls())
	eventually(t, func() bool { return h.fetcher.calls() == 2 }, "rules not reloaded after reconnect")
}

func TestSession_StartStop(t *testing.T) {
	t.Parallel()

	s := session.New(testConfig(), credentials.NewMemory(""), newFakeChannel(), &fakeFetcher{},
		rules.NewStore(), slog.New(slog.DiscardHandler))

	assert.ErrorIs(t, s.Stop(context.Background()), session.ErrNotStarted)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), session.ErrAlreadyStarted)
	require.NoError(t, s.Stop(context.Background()))

	cfg := testConfig()
	cfg.RefreshSchedule = "whenever"

	bad := session.New(cfg, credentials.NewMemory(""), newFakeChannel(), &fakeFetcher{},
		rules.NewStore(), slog.New(slog.DiscardHandler))
	assert.Error(t, bad.Start(context.Background()))
}

func TestSession_ObserveRecordsReplies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", &fakeFetcher{})
	f := greeting("F1")
	reply := models.NewTextMessage("Welcome!")

	h.session.Observe(context.Background(), dispatcher.Result{
		Event:   models.InboundEvent{ChatID: "chat-1", Direction: models.DirectionIncoming, Body: models.EventBody{Text: models.StringPtr("hello")}},
		Outcome: dispatcher.OutcomeReplied,
		Match:   rules.Match{Kind: rules.MatchFlow, Flow: &f},
		Reply:   &reply,
	})
	h.session.Observe(context.Background(), dispatcher.Result{
		Event:   models.InboundEvent{ChatID: "chat-2", Direction: models.DirectionIncoming},
		Outcome: dispatcher.OutcomeIgnoredEmpty,
	})

	all := h.session.Messages("")
	require.Len(t, all, 3)

	chat1 := h.session.Messages("chat-1")
	require.Len(t, chat1, 2)
	assert.Equal(t, "hello", chat1[0].Text)
	assert.Equal(t, models.DirectionOutgoing, chat1[1].Direction)
	assert.Equal(t, "F1", chat1[1].FlowID)
}

// blockingSender holds every Send until release is closed.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	sends   countingSender
}

func newBlockingSender() *blockingSender {
	return &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSender) Send(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	s.once.Do(func() { close(s.started) })
	<-s.release

	return s.sends.Send(ctx, chatID, msg)
}

func TestSession_QueuedEventsDoNotOutliveLogout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "token", &fakeFetcher{flows: []models.Flow{greeting("F1")}})
	eventually(t, func() bool { return h.flowCount() == 1 }, "rules not loaded")

	sender := newBlockingSender()
	d := dispatcher.New(h.store, rules.NewMatcher(""), sender, slog.New(slog.DiscardHandler),
		dispatcher.WithWorkers(1, 8),
		dispatcher.WithEpochCheck(h.channel.IsCurrent),
		dispatcher.WithObserver(h.session.Observe),
	)

	in := make(chan models.InboundEvent, 8)
	done := make(chan error, 1)

	go func() { done <- d.Run(context.Background(), in) }()

	epoch := h.channel.currentEpoch()
	for range 3 {
		in <- models.InboundEvent{
			ChatID:    "chat-1",
			Direction: models.DirectionIncoming,
			Body:      models.EventBody{Text: models.StringPtr("hello")},
			Epoch:     epoch,
		}
	}

	select {
	case <-sender.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first reply never sent")
	}

	require.NoError(t, h.creds.Clear(context.Background()))
	eventually(t, func() bool { return len(h.channel.disconnectReasons()) == 1 }, "channel not disconnected")

	close(sender.release)
	close(in)
	require.NoError(t, <-done)

	assert.Empty(t, h.session.Messages(""))
	assert.Equal(t, 1, sender.sends.count())
}

func TestMessageBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	b := session.NewMessageBuffer(3)

	for i := range 5 {
		b.Add(models.MessageRecord{ChatID: "c", Text: fmt.Sprint(i)})
	}

	records := b.List("")
	require.Len(t, records, 3)
	assert.Equal(t, "2", records[0].Text)
	assert.Equal(t, "4", records[2].Text)

	b.Clear()
	assert.Zero(t, b.Len())
}
