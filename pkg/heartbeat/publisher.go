// Package heartbeat publishes a session's liveness marker in the shared
// directory and removes the session's files when it shuts down.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultInterval is how often the metadata file's mtime is refreshed.
const DefaultInterval = time.Second

// Config holds configuration for a Publisher
type Config struct {
	Dir        string
	SessionID  string
	Descriptor protocol.Descriptor
	Interval   time.Duration
	// OnLost is called once if the metadata file disappears while the
	// publisher is running, e.g. after being reclaimed as stale.
	OnLost  func()
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Publisher registers one session and keeps it alive.
type Publisher struct {
	paths      protocol.Paths
	dir        string
	sessionID  string
	descriptor protocol.Descriptor
	interval   time.Duration
	onLost     func()
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Publisher
func New(cfg Config) (*Publisher, error) {
	if err := protocol.ValidateSessionID(cfg.SessionID); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("shared directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Publisher{
		paths:      protocol.PathsFor(cfg.Dir, cfg.SessionID),
		dir:        cfg.Dir,
		sessionID:  cfg.SessionID,
		descriptor: cfg.Descriptor,
		interval:   cfg.Interval,
		onLost:     cfg.OnLost,
		logger:     cfg.Logger.With().Str("component", "heartbeat").Str("session_id", cfg.SessionID).Logger(),
		metrics:    cfg.Metrics,
	}, nil
}

// Paths returns the session's files.
func (p *Publisher) Paths() protocol.Paths {
	return p.paths
}

// Start creates the session's files, writes the metadata once and begins
// touching it every interval. It may only be called once.
func (p *Publisher) Start(ctx context.Context) error {
	err := fmt.Errorf("publisher already started")
	p.startOnce.Do(func() {
		err = p.start(ctx)
	})
	return err
}

func (p *Publisher) start(ctx context.Context) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create shared directory: %w", err)
	}

	for _, path := range []string{p.paths.Command, p.paths.Response} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
		}
		f.Close()
	}

	if err := p.writeMetadata(); err != nil {
		p.removeFiles()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(loopCtx)

	p.logger.Info().
		Dur("interval", p.interval).
		Str("label", p.descriptor.Label()).
		Msg("Session registered")

	return nil
}

// writeMetadata writes descriptor fields plus a timestamp through a temp file
// and rename so readers never observe a half-written file.
func (p *Publisher) writeMetadata() error {
	meta := make(map[string]interface{}, len(p.descriptor)+1)
	for k, v := range p.descriptor {
		meta[k] = v
	}
	meta["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, "."+p.sessionID+".meta-*")
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	if err := os.Rename(tmpName, p.paths.Metadata); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish metadata file: %w", err)
	}

	return nil
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.beat() {
				return
			}
		}
	}
}

// beat touches the metadata file. It reports false once the session has been
// lost and beating should stop.
func (p *Publisher) beat() bool {
	now := time.Now()
	err := os.Chtimes(p.paths.Metadata, now, now)
	if err == nil {
		p.metrics.RecordHeartbeat()
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		p.logger.Warn().Msg("Session metadata disappeared, session is no longer discoverable")
		if p.onLost != nil {
			go p.onLost()
		}
		return false
	}

	p.logger.Error().Err(err).Msg("Failed to publish heartbeat")
	return true
}

// Stop stops the heartbeat and deletes the session's files. Files already
// removed are ignored. Safe to call more than once.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		p.removeFiles()

		p.logger.Info().Msg("Session unregistered")
	})
}

func (p *Publisher) removeFiles() {
	for _, path := range p.paths.All() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().
				Err(err).
				Str("path", path).
				Msg("Failed to remove session file")
		}
	}
}
