package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	MetaSuffix     = ".meta.json"
	CommandSuffix  = ".in"
	ResponseSuffix = ".out"

	// DefaultDirName is the shared directory under the user's home.
	DefaultDirName = ".vs-claude"
)

// Paths holds the three files belonging to one session.
type Paths struct {
	Metadata string
	Command  string
	Response string
}

// PathsFor returns the files of session id inside dir.
func PathsFor(dir, id string) Paths {
	return Paths{
		Metadata: filepath.Join(dir, id+MetaSuffix),
		Command:  filepath.Join(dir, id+CommandSuffix),
		Response: filepath.Join(dir, id+ResponseSuffix),
	}
}

// All returns the paths in removal order.
func (p Paths) All() []string {
	return []string{p.Metadata, p.Command, p.Response}
}

// DefaultDir returns ~/.vs-claude.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultDirName), nil
}

// ValidateSessionID checks that id is usable as a filename component.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	if strings.HasSuffix(id, MetaSuffix) || strings.HasSuffix(id, CommandSuffix) || strings.HasSuffix(id, ResponseSuffix) {
		return fmt.Errorf("session id cannot end with a session file suffix")
	}
	return nil
}

// NewSessionID generates a fresh session id.
func NewSessionID() string {
	return fmt.Sprintf("window-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewCommandID generates a command id unique among a caller's outstanding
// requests.
func NewCommandID(tool string) string {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if tool == "" {
		return id
	}
	return tool + "-" + id
}
