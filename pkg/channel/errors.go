package channel

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("channel is not connected")
	ErrNoCredential = errors.New("no credential to authenticate with")
	ErrClosed       = errors.New("channel is closed")
)

// ConnectError describes a failed handshake. It surfaces as a state transition,
// never to callers of Send.
type ConnectError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s (attempt %d): %v", e.URL, e.Attempt, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransmitError is returned by Send.
type TransmitError struct {
	ChatID string
	Err    error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit to chat %s: %v", e.ChatID, e.Err)
}

func (e *TransmitError) Unwrap() error {
	return e.Err
}

func IsTransmitError(err error) bool {
	var terr *TransmitError

	return errors.As(err, &terr)
}
