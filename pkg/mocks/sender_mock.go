package mocks

import (
	"context"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockSender is a mock implementation of dispatcher.Sender interface.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	args := m.Called(ctx, chatID, msg)

	return args.Error(0)
}
