package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/vsbridge/pkg/protocol"
)

type recorder struct {
	mu       sync.Mutex
	commands []protocol.Command
	rejects  []protocol.Response
}

func (r *recorder) onCommand(cmd protocol.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *recorder) onReject(resp protocol.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects = append(r.rejects, resp)
}

func (r *recorder) commandIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.commands))
	for _, c := range r.commands {
		ids = append(ids, c.ID)
	}
	return ids
}

func newTestReader(t *testing.T, path string, rec *recorder) *CommandReader {
	t.Helper()
	reader, err := NewCommandReader(CommandReaderConfig{
		Path:         path,
		PollInterval: 20 * time.Millisecond,
		OnCommand:    rec.onCommand,
		OnReject:     rec.onReject,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return reader
}

func TestNewCommandReader_Validation(t *testing.T) {
	_, err := NewCommandReader(CommandReaderConfig{OnCommand: func(protocol.Command) {}})
	assert.Error(t, err)

	_, err = NewCommandReader(CommandReaderConfig{Path: "x.in"})
	assert.Error(t, err)
}

func TestCommandReader_DrainsEveryRecordInBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")
	rec := &recorder{}
	reader := newTestReader(t, path, rec)

	const n = 25
	for i := 0; i < n; i++ {
		require.NoError(t, AppendCommand(path, protocol.Command{ID: fmt.Sprintf("c-%d", i), Tool: "echo"}))
	}

	assert.Equal(t, n, reader.Drain())

	ids := rec.commandIDs()
	require.Len(t, ids, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("c-%d", i), ids[i])
	}

	assert.Equal(t, 0, reader.Drain())
}

func TestCommandReader_PartialRecordParsedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")
	rec := &recorder{}
	reader := newTestReader(t, path, rec)

	writeRaw(t, path, `{"id":"p1","tool":"ec`)
	assert.Equal(t, 0, reader.Drain())
	assert.Empty(t, rec.commandIDs())

	writeRaw(t, path, "ho\"}\n")
	assert.Equal(t, 1, reader.Drain())
	assert.Equal(t, 0, reader.Drain())
	assert.Equal(t, []string{"p1"}, rec.commandIDs())
}

func TestCommandReader_MalformedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")
	rec := &recorder{}
	reader := newTestReader(t, path, rec)

	writeRaw(t, path, "not json at all\n")
	writeRaw(t, path, `{"id":"bad-args","tool":7}`+"\n")
	writeRaw(t, path, `{"id":"no-tool"}`+"\n")
	writeRaw(t, path, `{"tool":"echo"}`+"\n")
	require.NoError(t, AppendCommand(path, protocol.Command{ID: "good", Tool: "echo"}))

	assert.Equal(t, 1, reader.Drain())
	assert.Equal(t, []string{"good"}, rec.commandIDs())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.rejects, 2)
	assert.Equal(t, "bad-args", rec.rejects[0].ID)
	assert.False(t, rec.rejects[0].Success)
	assert.Equal(t, "no-tool", rec.rejects[1].ID)
	assert.Contains(t, rec.rejects[1].Error, "no tool")
}

func TestCommandReader_RunPicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")
	rec := &recorder{}
	reader := newTestReader(t, path, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, AppendCommand(path, protocol.Command{
			ID:   fmt.Sprintf("r-%d", i),
			Tool: "echo",
			Args: json.RawMessage(`{}`),
		}))
	}

	assert.Eventually(t, func() bool {
		return len(rec.commandIDs()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}

	assert.Equal(t, []string{"r-0", "r-1", "r-2"}, rec.commandIDs())
}
