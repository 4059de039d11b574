// Package remote speaks the spreadsheet backend's GET-based pseudo-RPC:
// bulk snapshot, delta changes, point reads, and create/update/delete.
// Every call goes through a Sender, normally the transport queue.
package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. LogicError matches ErrIDNotFound via errors.Is when the
// remote reported a missing id.
var (
	ErrIDNotFound        = errors.New("remote: ID not found")
	ErrMalformedResponse = errors.New("remote: malformed response")
)

// idNotFoundMessage is the error text the backend uses for missing rows.
const idNotFoundMessage = "ID not found"

// LogicError is a reply that arrived fine at the transport level but
// carries {"error": "..."}. It is recoverable: callers keep the request
// around and retry later.
type LogicError struct {
	Action  string
	Sheet   string
	Message string
}

func (e *LogicError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("remote: %s %s: %s", e.Action, e.Sheet, e.Message)
	}

	return fmt.Sprintf("remote: %s: %s", e.Action, e.Message)
}

// Is reports ErrIDNotFound for the backend's missing-row message.
func (e *LogicError) Is(target error) bool {
	return target == ErrIDNotFound && strings.EqualFold(strings.TrimSpace(e.Message), idNotFoundMessage)
}

func malformed(action, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, action, fmt.Sprintf(format, args...))
}
