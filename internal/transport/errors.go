// Package transport serializes every remote call through a single FIFO
// queue. The remote replies JSONP-style by invoking one fixed, well-known
// callback name with no per-call correlation id, so at most one exchange
// may be outstanding at a time.
package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is(err, transport.ErrTimeout) to check.
var (
	ErrTimeout   = errors.New("transport: request timed out")
	ErrTransport = errors.New("transport: delivery failed")
	ErrClosed    = errors.New("transport: queue closed")
)

// Error wraps a sentinel with the action that failed and, when known, the
// HTTP status and underlying cause.
type Error struct {
	Kind       error // ErrTimeout or ErrTransport
	Action     string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Action != "" {
		msg = fmt.Sprintf("%s (action %s)", msg, e.Action)
	}

	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}

	return []error{e.Kind}
}

// transportError classifies err as a delivery failure for action, keeping an
// existing *Error intact.
func transportError(action string, err error) error {
	var te *Error
	if errors.As(err, &te) {
		if te.Action == "" {
			te.Action = action
		}

		return te
	}

	return &Error{Kind: ErrTransport, Action: action, Cause: err}
}
