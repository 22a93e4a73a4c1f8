package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the target session id
	SessionIDKey ContextKey = "session_id"
	// CommandIDKey is the context key for the command correlation id
	CommandIDKey ContextKey = "command_id"
	// ToolKey is the context key for the tool name
	ToolKey ContextKey = "tool"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	CommandID string
	Tool      string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds a session id to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithCommand adds the command id and tool to the context
func WithCommand(ctx context.Context, commandID, tool string) context.Context {
	ctx = context.WithValue(ctx, CommandIDKey, commandID)
	return context.WithValue(ctx, ToolKey, tool)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetSessionID retrieves the session id from the context
func GetSessionID(ctx context.Context) string {
	return stringValue(ctx, SessionIDKey)
}

// GetCommandID retrieves the command id from the context
func GetCommandID(ctx context.Context) string {
	return stringValue(ctx, CommandIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		CommandID: GetCommandID(ctx),
		Tool:      stringValue(ctx, ToolKey),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// LoggerFromContext adds the tracing fields found in ctx to baseLogger
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	logCtx := baseLogger.With()

	if tc.TraceID != "" {
		logCtx = logCtx.Str("trace_id", tc.TraceID)
	}
	if tc.SessionID != "" {
		logCtx = logCtx.Str("session_id", tc.SessionID)
	}
	if tc.CommandID != "" {
		logCtx = logCtx.Str("command_id", tc.CommandID)
	}
	if tc.Tool != "" {
		logCtx = logCtx.Str("tool", tc.Tool)
	}

	return logCtx.Logger()
}
