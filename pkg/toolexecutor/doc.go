// Package toolexecutor is a session-side Executor that routes commands to
// registered tools by name.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before execution.
// - A tool denied by the policy is reported as a failed result, never run.
//
// Usage:
//
//	exec := toolexecutor.New(toolexecutor.Config{Logger: logger})
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
package toolexecutor
