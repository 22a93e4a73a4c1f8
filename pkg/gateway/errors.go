package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/vsbridge/pkg/protocol"
)

var (
	// ErrNoSessions is returned when no live session exists.
	ErrNoSessions = errors.New("no sessions found")
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("timed out waiting for response")
)

// SessionNotFoundError is returned when an explicit session id is not live.
type SessionNotFoundError struct {
	SessionID string
	Live      int
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session '%s' not found, %d live sessions", e.SessionID, e.Live)
}

// AmbiguousSessionError is returned when no id was given and more than one
// session is live. Candidates are sorted by id.
type AmbiguousSessionError struct {
	Candidates []protocol.Session
}

func (e *AmbiguousSessionError) Error() string {
	lines := make([]string, 0, len(e.Candidates))
	for _, s := range e.Candidates {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.ID, s.Descriptor.Label()))
	}
	return fmt.Sprintf(
		"multiple sessions found, specify a session id:\n%s\n\ncall again with the session id",
		strings.Join(lines, "\n"),
	)
}

// TimeoutError reports that no matching response arrived within the budget.
// The command stays written; the session may still answer it later.
type TimeoutError struct {
	CommandID string
	SessionID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for response to command %s after %s", e.CommandID, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
