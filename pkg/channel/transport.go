package channel

import (
	"context"

	"github.com/dukex/flowbot/pkg/models"
)

// Conn is one authenticated transport connection.
type Conn interface {
	// ReadEvent blocks until the next inbound message event arrives or the
	// connection fails.
	ReadEvent(ctx context.Context) (models.InboundEvent, error)
	SendMessage(ctx context.Context, chatID string, msg models.OutboundMessage) error
	Close() error
}

// Dialer opens a Conn authenticated with credential.
type Dialer interface {
	Dial(ctx context.Context, url, credential string) (Conn, error)
}

// Sender delivers outbound messages out of band, such as the backend's REST send call.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, msg models.OutboundMessage) error
}
