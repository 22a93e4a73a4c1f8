package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/harun/vsbridge/pkg/protocol"
)

// ErrChannelGone is returned when a session's response log no longer exists,
// typically because the session was reclaimed while a command was running.
var ErrChannelGone = errors.New("channel file no longer exists")

// appendLine writes data plus a newline with a single write on an O_APPEND
// descriptor and syncs it before returning.
func appendLine(path string, data []byte, create bool) error {
	flags := os.O_APPEND | os.O_WRONLY
	if create {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if !create && errors.Is(err, os.ErrNotExist) {
			return ErrChannelGone
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync record: %w", err)
	}

	return nil
}

// AppendCommand durably appends one command record to a session's command log.
// Many caller processes may append to the same file concurrently.
func AppendCommand(path string, cmd protocol.Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command id cannot be empty")
	}
	if cmd.Tool == "" {
		return fmt.Errorf("command tool cannot be empty")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	return appendLine(path, data, true)
}

// ResponseWriter appends responses to a session's response log. It is the only
// writer of that file; concurrent dispatch workers are serialized.
type ResponseWriter struct {
	path string
	mu   sync.Mutex
}

// NewResponseWriter creates a writer for path.
func NewResponseWriter(path string) *ResponseWriter {
	return &ResponseWriter{path: path}
}

// Write appends one response. It does not recreate a deleted log: a response
// for a reclaimed session returns ErrChannelGone.
func (w *ResponseWriter) Write(resp protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return appendLine(w.path, data, false)
}
