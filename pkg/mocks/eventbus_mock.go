// Package mocks provides testify mocks of the engine's collaborators.
package mocks

import (
	"context"

	"github.com/dukex/flowbot/pkg/eventbus"
	"github.com/dukex/flowbot/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

// OnPublish expects one event of the given type keyed by chatID.
func (m *MockEventBus) OnPublish(chatID string, eventType events.EventType) *mock.Call {
	return m.On("Publish", mock.Anything, chatID, OfType(eventType))
}

// Published returns every event passed to Publish, in call order.
func (m *MockEventBus) Published() []eventbus.Event {
	var published []eventbus.Event

	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}

		if event, ok := call.Arguments.Get(2).(eventbus.Event); ok {
			published = append(published, event)
		}
	}

	return published
}

// OfType matches an event argument by its type.
func OfType(eventType events.EventType) any {
	return mock.MatchedBy(func(e eventbus.Event) bool {
		return e != nil && e.GetType() == eventType
	})
}
