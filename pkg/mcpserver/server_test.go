package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/vsbridge/pkg/gateway"
	"github.com/harun/vsbridge/pkg/protocol"
)

type fakeCaller struct {
	sessionID string
	tool      string
	args      json.RawMessage
	timeout   time.Duration

	resp *protocol.Response
	err  error
}

func (f *fakeCaller) Call(ctx context.Context, sessionID, tool string, args json.RawMessage, timeout time.Duration) (*protocol.Response, error) {
	f.sessionID = sessionID
	f.tool = tool
	f.args = args
	f.timeout = timeout
	return f.resp, f.err
}

func newTestServer(t *testing.T, caller Caller, tools ...string) *Server {
	t.Helper()
	s, err := New(Config{Caller: caller, Tools: tools, Timeout: time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	s := newTestServer(t, &fakeCaller{}, "symbols", "open", " ", "symbols")
	assert.Equal(t, []string{"open", "symbols"}, s.Tools())
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, describe("open"), "Open files and diffs")
	assert.Contains(t, describe("open"), `"sessionId": "window-123"`)
	assert.Contains(t, describe("symbols"), "symbols")
}

func TestInvoke_ForwardsArgsAndSession(t *testing.T) {
	caller := &fakeCaller{resp: &protocol.Response{ID: "open-1", Success: true, Data: json.RawMessage(`{"opened":1}`)}}
	s := newTestServer(t, caller)

	text, isError := s.Invoke(context.Background(), "open", ToolInput{
		Args:      map[string]interface{}{"type": "file", "path": "/a.ts"},
		SessionID: "window-1",
	})

	assert.False(t, isError)
	assert.Equal(t, `{"opened":1}`, text)
	assert.Equal(t, "window-1", caller.sessionID)
	assert.Equal(t, "open", caller.tool)
	assert.JSONEq(t, `{"type":"file","path":"/a.ts"}`, string(caller.args))
	assert.Equal(t, time.Second, caller.timeout)
}

func TestInvoke_WindowIDAlias(t *testing.T) {
	caller := &fakeCaller{resp: &protocol.Response{Success: true}}
	s := newTestServer(t, caller)

	s.Invoke(context.Background(), "open", ToolInput{Args: map[string]interface{}{}, WindowID: "window-9"})
	assert.Equal(t, "window-9", caller.sessionID)
	assert.JSONEq(t, `{}`, string(caller.args))
}

func TestInvoke_MissingArgs(t *testing.T) {
	caller := &fakeCaller{resp: &protocol.Response{Success: true}}
	s := newTestServer(t, caller)

	text, isError := s.Invoke(context.Background(), "open", ToolInput{SessionID: "window-1"})

	assert.True(t, isError)
	assert.Equal(t, "missing 'args' parameter", text)
	assert.Empty(t, caller.tool, "nothing is sent to the session")
}

func TestInvoke_Results(t *testing.T) {
	tests := []struct {
		name    string
		resp    *protocol.Response
		err     error
		text    string
		isError bool
	}{
		{
			name: "string data is unwrapped",
			resp: &protocol.Response{Success: true, Data: json.RawMessage(` "line one\nline two"`)},
			text: "line one\nline two",
		},
		{
			name: "object data stays JSON",
			resp: &protocol.Response{Success: true, Data: json.RawMessage(`[1,2]`)},
			text: "[1,2]",
		},
		{
			name:    "application failure",
			resp:    &protocol.Response{Success: false, Error: "file not found"},
			text:    "file not found",
			isError: true,
		},
		{
			name:    "discovery error",
			err:     gateway.ErrNoSessions,
			text:    "failed to execute open: no sessions found",
			isError: true,
		},
		{
			name:    "timeout",
			err:     &gateway.TimeoutError{CommandID: "open-1", Timeout: time.Second},
			text:    "failed to execute open: timeout waiting for response to command open-1 after 1s",
			isError: true,
		},
		{
			name:    "other error",
			err:     errors.New("disk full"),
			text:    "failed to execute open: disk full",
			isError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeCaller{resp: tt.resp, err: tt.err})
			text, isError := s.Invoke(context.Background(), "open", ToolInput{Args: map[string]interface{}{"path": "/a.ts"}})
			assert.Equal(t, tt.text, text)
			assert.Equal(t, tt.isError, isError)
		})
	}
}

func TestServer_OverMCPTransport(t *testing.T) {
	caller := &fakeCaller{resp: &protocol.Response{ID: "open-1", Success: true, Data: json.RawMessage(`"opened"`)}}
	s := newTestServer(t, caller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "open", tools.Tools[0].Name)
	assert.Contains(t, tools.Tools[0].Description, "sessionId")

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "open",
		Arguments: map[string]any{
			"args":      map[string]any{"type": "file", "path": "/src/main.go"},
			"sessionId": "window-1",
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "opened", result.Content[0].(*mcp.TextContent).Text)

	assert.Equal(t, "window-1", caller.sessionID)
	assert.Equal(t, "open", caller.tool)
	assert.JSONEq(t, `{"type":"file","path":"/src/main.go"}`, string(caller.args))
}
