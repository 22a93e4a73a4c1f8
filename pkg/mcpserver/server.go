// Package mcpserver exposes session tools to MCP clients over stdio. Each tool
// call is forwarded through the gateway to one editor session.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultTools are always exposed.
var DefaultTools = []string{"open"}

// Caller sends one command to a session. *gateway.Gateway satisfies it.
type Caller interface {
	Call(ctx context.Context, sessionID, tool string, args json.RawMessage, timeout time.Duration) (*protocol.Response, error)
}

// ToolInput is the argument envelope of every exposed tool.
type ToolInput struct {
	Args      any    `json:"args,omitempty" jsonschema:"Tool arguments passed through to the session unchanged"`
	SessionID string `json:"sessionId,omitempty" jsonschema:"Target session id, required when more than one session is live"`
	// WindowID is accepted as an alias of SessionID.
	WindowID string `json:"windowId,omitempty" jsonschema:"Deprecated alias of sessionId"`
}

// Config holds configuration for a Server
type Config struct {
	Name    string
	Version string
	Caller  Caller
	// Tools are exposed in addition to DefaultTools.
	Tools   []string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Server is an MCP server whose tools are answered by editor sessions.
type Server struct {
	server  *mcp.Server
	caller  Caller
	tools   []string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if cfg.Name == "" {
		cfg.Name = "vsbridge"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		caller:  cfg.Caller,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With().Str("component", "mcpserver").Logger(),
	}

	seen := make(map[string]bool)
	for _, name := range append(append([]string{}, DefaultTools...), cfg.Tools...) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		s.tools = append(s.tools, name)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        name,
			Description: describe(name),
		}, s.handler(name))
	}

	return s, nil
}

// Tools returns the names of the exposed tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves MCP over stdin/stdout until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Strs("tools", s.tools).Msg("MCP server starting")

	err := s.server.Run(ctx, mcp.NewStdioTransport())
	if err != nil && ctx.Err() == nil && !isDisconnect(err) {
		return fmt.Errorf("mcp server failed: %w", err)
	}

	s.logger.Info().Msg("MCP server shutdown")
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

func (s *Server) handler(tool string) mcp.ToolHandlerFor[ToolInput, any] {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ToolInput]) (*mcp.CallToolResultFor[any], error) {
		text, isError := s.Invoke(ctx, tool, params.Arguments)
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: isError,
		}, nil
	}
}

// Invoke forwards one tool call and renders the outcome as text. A call
// without args is rejected before anything is sent. Discovery,
// timeout and application failures come back as error text rather than Go
// errors so the model can read them and retry.
func (s *Server) Invoke(ctx context.Context, tool string, in ToolInput) (string, bool) {
	if in.Args == nil {
		return "missing 'args' parameter", true
	}
	args, err := json.Marshal(in.Args)
	if err != nil {
		return fmt.Sprintf("failed to marshal arguments: %v", err), true
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = in.WindowID
	}

	s.logger.Debug().
		Str("tool", tool).
		Str("session_id", sessionID).
		RawJSON("args", nonEmptyJSON(args)).
		Msg("Forwarding tool call")

	resp, err := s.caller.Call(ctx, sessionID, tool, args, s.timeout)
	if err != nil {
		s.logger.Warn().Err(err).Str("tool", tool).Msg("Tool call failed")
		return fmt.Sprintf("failed to execute %s: %v", tool, err), true
	}

	if !resp.Success {
		return resp.Error, true
	}

	return renderData(resp.Data), false
}

// renderData unwraps JSON strings and returns any other data as JSON text.
func renderData(data json.RawMessage) string {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err == nil {
			return str
		}
	}
	return trimmed
}

func nonEmptyJSON(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
