// Package backend is the REST client for the messaging backend: flows and templates
// fetches and the outbound send call.
package backend

import (
	"errors"
	"fmt"
)

var (
	ErrNoCredential = errors.New("no credential available")
	ErrUnsuccessful = errors.New("backend reported failure")
	ErrTransient    = errors.New("transient backend error")
)

// FetchError is returned when flows or templates cannot be fetched.
type FetchError struct {
	Op         string // "FetchFlows" or "FetchTemplates"
	StatusCode int    // HTTP status, zero when no response was received
	Message    string // backend "msg" field, if any
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}

	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}

	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying: a network failure, a timeout
// or a 5xx/429 response.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// transientError keeps the underlying cause while matching ErrTransient.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() []error {
	return []error{ErrTransient, e.err}
}
