package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Tailer incrementally reads complete lines appended to a file.
//
// The cursor only moves past bytes that end in a newline. A trailing fragment
// is an in-progress record: it is left unconsumed and read again, together with
// whatever was appended after it, on the next call.
type Tailer struct {
	path   string
	offset int64
	mu     sync.Mutex
}

// NewTailer creates a tailer positioned at offset.
func NewTailer(path string, offset int64) *Tailer {
	return &Tailer{path: path, offset: offset}
}

// NewTailerAtEnd creates a tailer positioned at the file's current length, so
// only records appended from now on are returned. A missing file starts at 0.
func NewTailerAtEnd(path string) (*Tailer, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTailer(path, 0), nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return NewTailer(path, info.Size()), nil
}

// Offset returns the position just past the last complete line returned.
func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Path returns the tailed file.
func (t *Tailer) Path() string {
	return t.path
}

// ReadLines returns every complete, non-blank line appended since the last
// call. A missing file yields no lines and no error.
func (t *Tailer) ReadLines() ([][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", t.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", t.path, err)
	}

	size := info.Size()
	if size < t.offset {
		// Replaced or truncated underneath us
		t.offset = 0
	}
	if size == t.offset {
		return nil, nil
	}

	chunk := make([]byte, size-t.offset)
	n, err := file.ReadAt(chunk, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	chunk = chunk[:n]

	last := bytes.LastIndexByte(chunk, '\n')
	if last < 0 {
		return nil, nil
	}
	complete := chunk[:last+1]
	t.offset += int64(len(complete))

	var lines [][]byte
	for _, line := range bytes.Split(complete[:len(complete)-1], []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}

	return lines, nil
}
