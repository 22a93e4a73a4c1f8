// Package registry discovers live sessions in the shared directory and
// reclaims sessions whose heartbeat has gone stale.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultStaleThreshold is how long a metadata file may go untouched before
// its session is considered dead.
const DefaultStaleThreshold = 5 * time.Second

// Config holds configuration for a Registry
type Config struct {
	Dir            string
	StaleThreshold time.Duration
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// Registry scans the shared directory on every call. It keeps no cache:
// sessions appear and vanish between calls.
type Registry struct {
	dir            string
	staleThreshold time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// New creates a Registry
func New(cfg Config) *Registry {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}

	return &Registry{
		dir:            cfg.Dir,
		staleThreshold: cfg.StaleThreshold,
		logger:         cfg.Logger.With().Str("component", "registry").Logger(),
		metrics:        cfg.Metrics,
		now:            time.Now,
	}
}

// Dir returns the shared directory.
func (r *Registry) Dir() string {
	return r.dir
}

// ListLiveSessions returns the descriptor of every live session keyed by id.
func (r *Registry) ListLiveSessions() (map[string]protocol.Descriptor, error) {
	sessions, err := r.LiveSessions()
	if err != nil {
		return nil, err
	}

	result := make(map[string]protocol.Descriptor, len(sessions))
	for _, s := range sessions {
		result[s.ID] = s.Descriptor
	}
	return result, nil
}

// LiveSessions returns every live session sorted by id. Stale sessions found
// along the way are reclaimed. A missing directory means zero sessions.
func (r *Registry) LiveSessions() ([]protocol.Session, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.metrics.SetLiveSessions(0)
			return []protocol.Session{}, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	now := r.now()
	sessions := make([]protocol.Session, 0)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, protocol.MetaSuffix) {
			continue
		}

		id := strings.TrimSuffix(name, protocol.MetaSuffix)
		if protocol.ValidateSessionID(id) != nil {
			continue
		}
		paths := protocol.PathsFor(r.dir, id)

		info, err := os.Stat(paths.Metadata)
		if err != nil {
			// Removed between listing and stat
			continue
		}

		if age := now.Sub(info.ModTime()); age > r.staleThreshold {
			r.logger.Info().
				Str("session_id", id).
				Dur("age", age).
				Msg("Reclaiming stale session")
			r.Reclaim(id)
			continue
		}

		data, err := os.ReadFile(paths.Metadata)
		if err != nil {
			continue
		}

		var descriptor protocol.Descriptor
		if err := json.Unmarshal(data, &descriptor); err != nil || descriptor == nil {
			r.logger.Debug().
				Str("session_id", id).
				Msg("Skipping unreadable session metadata")
			continue
		}

		sessions = append(sessions, protocol.Session{
			ID:            id,
			Descriptor:    descriptor,
			LastHeartbeat: info.ModTime(),
			Paths:         paths,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	r.metrics.SetLiveSessions(len(sessions))

	return sessions, nil
}

// Reclaim deletes every file of session id. Files already gone are ignored.
func (r *Registry) Reclaim(id string) {
	if err := protocol.ValidateSessionID(id); err != nil {
		return
	}

	for _, path := range protocol.PathsFor(r.dir, id).All() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn().
				Err(err).
				Str("path", path).
				Msg("Failed to remove session file")
		}
	}

	r.metrics.RecordReclaimed()
}
