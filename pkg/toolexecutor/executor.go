package toolexecutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultTimeout bounds a single tool call when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Config holds configuration for a ToolExecutor
type Config struct {
	Policy  *ToolPolicy
	Timeout time.Duration
	Logger  zerolog.Logger
}

// ToolExecutor manages and executes tools. It implements protocol.Executor.
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	policy  *ToolPolicy
	timeout time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
}

var _ protocol.Executor = (*ToolExecutor)(nil)

// New creates a new ToolExecutor
func New(cfg Config) *ToolExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	te := &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		policy:  cfg.Policy,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With().Str("component", "toolexecutor").Logger(),
	}

	te.logger.Debug().Msg("Tool executor initialized")

	return te
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateJSONSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	te.logger.Debug().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns the names of registered tools the policy allows, sorted.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	tools := make([]string, 0, len(te.tools))
	for name := range te.tools {
		tools = append(tools, name)
	}
	te.mu.RUnlock()

	tools = FilterToolsByPolicy(tools, te.policy)
	sort.Strings(tools)
	return tools
}

// Execute runs one command. Tool-level problems (unknown tool, policy, bad
// arguments, handler errors) are reported as failed results; the error return
// is reserved for the executor itself being unusable.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, args json.RawMessage) (protocol.Result, error) {
	startTime := time.Now()

	if !te.policy.IsToolAllowed(toolName) {
		te.logger.Warn().
			Str("tool", toolName).
			Msg("Tool execution blocked by policy")
		return protocol.Failure(fmt.Sprintf("tool '%s' is not allowed by session policy", toolName)), nil
	}

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	te.mu.RUnlock()

	if tool == nil {
		te.logger.Warn().Str("tool", toolName).Msg("Tool not found")
		return protocol.Failure(fmt.Sprintf("unknown tool: %s", toolName)), nil
	}

	params, err := decodeParams(args)
	if err != nil {
		return protocol.Failure(fmt.Sprintf("invalid arguments for %s: %v", toolName, err)), nil
	}

	if err := validateParameters(schema, params); err != nil {
		te.logger.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return protocol.Failure(fmt.Sprintf("parameter validation failed: %v", err)), nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, te.timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := tool.Handler(timeoutCtx, params)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		duration := time.Since(startTime)
		if out.err != nil {
			te.logger.Debug().
				Str("tool", toolName).
				Dur("duration", duration).
				Err(out.err).
				Msg("Tool execution failed")
			return protocol.Failure(out.err.Error()), nil
		}

		te.logger.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution completed")
		return protocol.Success(out.value), nil

	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return protocol.Failure(fmt.Sprintf("tool execution cancelled: %v", ctx.Err())), nil
		}
		te.logger.Warn().
			Str("tool", toolName).
			Dur("timeout", te.timeout).
			Msg("Tool execution timeout")
		return protocol.Failure(fmt.Sprintf("tool execution timeout after %v", te.timeout)), nil
	}
}

// decodeParams turns raw command arguments into a parameter map. Absent or
// null arguments mean no parameters.
func decodeParams(args json.RawMessage) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]interface{}{}, nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return params, nil
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateJSONSchema generates a JSON Schema from tool parameters
func generateJSONSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}
