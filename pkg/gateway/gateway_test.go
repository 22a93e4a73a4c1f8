package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/vsbridge/pkg/host"
	"github.com/harun/vsbridge/pkg/protocol"
	"github.com/harun/vsbridge/pkg/registry"
	"github.com/harun/vsbridge/pkg/toolexecutor"
)

func newTestGateway(t *testing.T, dir string) *Gateway {
	t.Helper()
	g, err := New(Config{
		Registry: registry.New(registry.Config{Dir: dir, Logger: zerolog.Nop()}),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return g
}

// writeIdleSession registers a session that never answers.
func writeIdleSession(t *testing.T, dir, id, workspace string) protocol.Paths {
	t.Helper()
	paths := protocol.PathsFor(dir, id)
	data, err := json.Marshal(map[string]string{"workspace": workspace})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Metadata, data, 0644))
	require.NoError(t, os.WriteFile(paths.Command, nil, 0644))
	require.NoError(t, os.WriteFile(paths.Response, nil, 0644))
	return paths
}

func startHost(t *testing.T, dir, id string) *host.Host {
	t.Helper()
	exec := toolexecutor.New(toolexecutor.Config{Logger: zerolog.Nop()})
	require.NoError(t, toolexecutor.RegisterBuiltins(exec, id, protocol.Descriptor{"workspace": "/src/" + id}))

	h, err := host.New(host.Config{
		Dir:               dir,
		SessionID:         id,
		Descriptor:        protocol.Descriptor{"workspace": "/src/" + id},
		Executor:          exec,
		WatchPollInterval: 20 * time.Millisecond,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	g := newTestGateway(t, t.TempDir())
	assert.Equal(t, ShortTimeout, g.ShortTimeout())
	assert.Equal(t, LongTimeout, g.LongTimeout())
}

func TestCall_NoSessionsFailsFast(t *testing.T) {
	g := newTestGateway(t, t.TempDir())

	start := time.Now()
	_, err := g.Call(context.Background(), "", "ping", nil, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSessions))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCall_AmbiguousListsCandidates(t *testing.T) {
	dir := t.TempDir()
	b := writeIdleSession(t, dir, "window-b", "/src/b")
	a := writeIdleSession(t, dir, "window-a", "/src/a")
	g := newTestGateway(t, dir)

	_, err := g.Call(context.Background(), "", "ping", nil, time.Minute)
	require.Error(t, err)

	var ambiguous *AmbiguousSessionError
	require.True(t, errors.As(err, &ambiguous))
	require.Len(t, ambiguous.Candidates, 2)
	assert.Equal(t, "window-a", ambiguous.Candidates[0].ID)
	assert.Contains(t, err.Error(), "- window-a: /src/a\n- window-b: /src/b")

	// Nothing was written to either session
	for _, p := range []protocol.Paths{a, b} {
		data, err := os.ReadFile(p.Command)
		require.NoError(t, err)
		assert.Empty(t, data)
	}
}

func TestCall_UnknownSession(t *testing.T) {
	dir := t.TempDir()
	writeIdleSession(t, dir, "window-a", "/src/a")
	g := newTestGateway(t, dir)

	_, err := g.Call(context.Background(), "window-zzz", "ping", nil, time.Minute)
	var notFound *SessionNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "session 'window-zzz' not found, 1 live sessions", err.Error())
}

func TestCall_ExplicitSessionAmongMany(t *testing.T) {
	dir := t.TempDir()
	other := writeIdleSession(t, dir, "window-idle", "/src/idle")
	h := startHost(t, dir, "window-live")
	g := newTestGateway(t, dir)

	resp, err := g.Call(context.Background(), h.ID(), "echo", json.RawMessage(`{"text":"hi"}`), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `"hi"`, string(resp.Data))

	data, err := os.ReadFile(other.Command)
	require.NoError(t, err)
	assert.Empty(t, data, "command must only reach the addressed session")
}

func TestCall_TimeoutHonorsBudget(t *testing.T) {
	dir := t.TempDir()
	paths := writeIdleSession(t, dir, "window-idle", "/src/idle")
	g := newTestGateway(t, dir)

	budget := 200 * time.Millisecond
	start := time.Now()
	_, err := g.Call(context.Background(), "", "ping", nil, budget)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "window-idle", timeoutErr.SessionID)

	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+time.Second)

	// The command stays written after the caller gives up
	data, err := os.ReadFile(paths.Command)
	require.NoError(t, err)
	assert.Contains(t, string(data), timeoutErr.CommandID)
}

func TestCall_ContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeIdleSession(t, dir, "window-idle", "/src/idle")
	g := newTestGateway(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Call(ctx, "", "ping", nil, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestCall_ApplicationFailure(t *testing.T) {
	dir := t.TempDir()
	startHost(t, dir, "window-live")
	g := newTestGateway(t, dir)

	resp, err := g.Call(context.Background(), "", "no-such-tool", nil, 2*time.Second)
	require.NoError(t, err, "application failures are not transport errors")
	assert.False(t, resp.Success)

	var appErr *protocol.ApplicationError
	require.True(t, errors.As(resp.Err(), &appErr))
	assert.Contains(t, appErr.Message, "unknown tool")
}

func TestCall_IgnoresEarlierResponses(t *testing.T) {
	dir := t.TempDir()
	paths := writeIdleSession(t, dir, "window-idle", "/src/idle")
	require.NoError(t, os.WriteFile(paths.Response, []byte(`{"id":"old","success":true}`+"\n"+`garbage`+"\n"), 0644))
	g := newTestGateway(t, dir)

	_, err := g.Call(context.Background(), "", "ping", nil, 100*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestCall_ConcurrentCallers(t *testing.T) {
	dir := t.TempDir()
	startHost(t, dir, "window-live")
	g := newTestGateway(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("msg-%d", i)
			args, _ := json.Marshal(map[string]string{"text": text})

			resp, err := g.Call(context.Background(), "", "echo", args, 5*time.Second)
			if assert.NoError(t, err) {
				assert.JSONEq(t, fmt.Sprintf("%q", text), string(resp.Data))
			}
		}(i)
	}
	wg.Wait()
}

func TestCall_EmptyTool(t *testing.T) {
	g := newTestGateway(t, t.TempDir())
	_, err := g.Call(context.Background(), "", "", nil, time.Second)
	assert.Error(t, err)
}
