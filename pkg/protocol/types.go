package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Command is a single request written to a session's command log.
type Command struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response is the answer to exactly one Command, matched by ID.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Err converts a failure response into an *ApplicationError. It returns nil for
// successful responses.
func (r *Response) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return &ApplicationError{CommandID: r.ID, Message: r.Error}
}

// ApplicationError is a failure reported by the session's executor, as opposed
// to a transport failure.
type ApplicationError struct {
	CommandID string
	Message   string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %s failed", e.CommandID)
	}
	return e.Message
}

// Result is what an Executor hands back for one command.
type Result struct {
	Success bool
	Data    json.RawMessage
	Error   string
}

// Success builds a successful Result, marshaling data to JSON.
func Success(data interface{}) Result {
	if data == nil {
		return Result{Success: true}
	}
	if raw, ok := data.(json.RawMessage); ok {
		return Result{Success: true, Data: raw}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return Failure(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return Result{Success: true, Data: encoded}
}

// Failure builds a failed Result.
func Failure(message string) Result {
	return Result{Success: false, Error: message}
}

// ResponseFor binds a Result to the id of the command it answers.
func ResponseFor(id string, result Result) Response {
	return Response{
		ID:      id,
		Success: result.Success,
		Data:    result.Data,
		Error:   result.Error,
	}
}

// Executor runs one command on behalf of a session. It is supplied by the host
// and is opaque to the transport.
type Executor interface {
	Execute(ctx context.Context, tool string, args json.RawMessage) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, tool string, args json.RawMessage) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, tool string, args json.RawMessage) (Result, error) {
	return f(ctx, tool, args)
}

// Descriptor is the small, transport-opaque JSON object a session publishes
// about itself.
type Descriptor map[string]interface{}

// Label returns a human-readable label for the session.
func (d Descriptor) Label() string {
	for _, key := range []string{"workspace", "windowTitle", "label"} {
		if v, ok := d[key].(string); ok && v != "" {
			return v
		}
	}
	return "(unnamed)"
}

// Session is one addressable endpoint discovered in the shared directory.
type Session struct {
	ID            string     `json:"id"`
	Descriptor    Descriptor `json:"descriptor"`
	LastHeartbeat time.Time  `json:"lastHeartbeat"`
	Paths         Paths      `json:"-"`
}
