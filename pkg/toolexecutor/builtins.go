package toolexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/vsbridge/pkg/protocol"
)

// RegisterBuiltins registers the tools every demo host answers:
// ping, echo, sleep and session.
func RegisterBuiltins(te *ToolExecutor, sessionID string, descriptor protocol.Descriptor) error {
	builtins := []ToolDefinition{
		{
			Name:        "ping",
			Description: "Report that the session is alive",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{
					"pong":      true,
					"sessionId": sessionID,
					"time":      time.Now().UTC().Format(time.RFC3339Nano),
				}, nil
			},
		},
		{
			Name:        "echo",
			Description: "Return the given text unchanged",
			Parameters: []ToolParameter{
				{Name: "text", Type: "string", Description: "Text to echo", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return params["text"], nil
			},
		},
		{
			Name:        "sleep",
			Description: "Wait for the given number of milliseconds, then answer",
			Parameters: []ToolParameter{
				{Name: "ms", Type: "integer", Description: "Milliseconds to wait", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				ms, _ := params["ms"].(float64)
				if ms < 0 {
					return nil, fmt.Errorf("ms must not be negative")
				}
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()
				select {
				case <-timer.C:
					return map[string]interface{}{"slept": int64(ms)}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		{
			Name:        "session",
			Description: "Describe this session",
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{
					"id":         sessionID,
					"label":      descriptor.Label(),
					"descriptor": descriptor,
					"tools":      te.ListTools(),
				}, nil
			},
		},
	}

	for _, def := range builtins {
		if err := te.RegisterTool(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}

	return nil
}
