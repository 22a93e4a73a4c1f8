package channel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/vsbridge/pkg/protocol"
)

func TestAppendCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")

	err := AppendCommand(path, protocol.Command{ID: "x", Tool: "open", Args: json.RawMessage(`{"path":"/a.ts"}`)})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))

	var cmd protocol.Command
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &cmd))
	assert.Equal(t, "x", cmd.ID)
	assert.Equal(t, "open", cmd.Tool)
	assert.JSONEq(t, `{"path":"/a.ts"}`, string(cmd.Args))
}

func TestAppendCommand_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")

	assert.Error(t, AppendCommand(path, protocol.Command{Tool: "open"}))
	assert.Error(t, AppendCommand(path, protocol.Command{ID: "x"}))
}

func TestAppendCommand_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.in")

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			args := json.RawMessage(fmt.Sprintf(`{"payload":"%s"}`, strings.Repeat("x", 512)))
			assert.NoError(t, AppendCommand(path, protocol.Command{ID: fmt.Sprintf("c-%d", i), Tool: "echo", Args: args}))
		}(i)
	}
	wg.Wait()

	lines, err := NewTailer(path, 0).ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, writers)

	seen := make(map[string]bool)
	for _, line := range lines {
		cmd, err := ParseCommand(line)
		require.NoError(t, err)
		seen[cmd.ID] = true
	}
	assert.Len(t, seen, writers)
}

func TestResponseWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.out")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	w := NewResponseWriter(path)
	require.NoError(t, w.Write(protocol.Response{ID: "a", Success: true, Data: json.RawMessage(`{"ok":1}`)}))
	require.NoError(t, w.Write(protocol.Response{ID: "b", Success: false, Error: "nope"}))

	lines, err := NewTailer(path, 0).ReadLines()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"a","success":true,"data":{"ok":1}}`, string(lines[0]))
	assert.JSONEq(t, `{"id":"b","success":false,"error":"nope"}`, string(lines[1]))
}

func TestResponseWriter_FileGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reclaimed.out")

	w := NewResponseWriter(path)
	err := w.Write(protocol.Response{ID: "late", Success: true})
	assert.ErrorIs(t, err, ErrChannelGone)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "writer must not recreate a reclaimed log")
}
