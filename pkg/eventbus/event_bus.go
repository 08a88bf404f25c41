// Package eventbus publishes engine events to a message broker.
package eventbus

import (
	"context"

	"github.com/dukex/flowbot/pkg/events"
)

// Event is any engine event that knows its type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes an event. key partitions events; the engine uses the chat id,
// or "session" for session-wide events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes received events to the handler registered for their type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

func (Nop) Handle(events.EventType, EventHandler) error { return nil }

func (Nop) Subscribe(context.Context) error { return nil }

func (Nop) Close() error { return nil }
