// Package host runs the session side of the bridge: it registers a session,
// keeps it alive, reads its command log and writes one response per command.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/internal/tracing"
	"github.com/harun/vsbridge/pkg/channel"
	"github.com/harun/vsbridge/pkg/dispatch"
	"github.com/harun/vsbridge/pkg/heartbeat"
	"github.com/harun/vsbridge/pkg/protocol"
)

// Config holds configuration for a Host
type Config struct {
	Dir string
	// SessionID defaults to a freshly generated id.
	SessionID         string
	Descriptor        protocol.Descriptor
	Executor          protocol.Executor
	HeartbeatInterval time.Duration
	WatchPollInterval time.Duration
	MaxConcurrent     int
	ExecTimeout       time.Duration
	Logger            zerolog.Logger
	Metrics           *metrics.Metrics
}

// Host is one live session endpoint.
type Host struct {
	id        string
	publisher *heartbeat.Publisher
	reader    *channel.CommandReader
	writer    *channel.ResponseWriter
	queue     *dispatch.Queue
	logger    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// New wires the session components together. Nothing touches the shared
// directory until Start.
func New(cfg Config) (*Host, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = protocol.NewSessionID()
	}
	if cfg.Descriptor == nil {
		cfg.Descriptor = protocol.Descriptor{}
	}

	logger := cfg.Logger.With().Str("session_id", cfg.SessionID).Logger()
	paths := protocol.PathsFor(cfg.Dir, cfg.SessionID)

	h := &Host{
		id:     cfg.SessionID,
		writer: channel.NewResponseWriter(paths.Response),
		logger: logger,
		done:   make(chan struct{}),
	}

	var err error
	h.publisher, err = heartbeat.New(heartbeat.Config{
		Dir:        cfg.Dir,
		SessionID:  cfg.SessionID,
		Descriptor: cfg.Descriptor,
		Interval:   cfg.HeartbeatInterval,
		OnLost:     h.onLost,
		Logger:     logger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	h.queue, err = dispatch.New(dispatch.Config{
		Executor:    cfg.Executor,
		Sink:        h.writeResponse,
		Concurrency: cfg.MaxConcurrent,
		ExecTimeout: cfg.ExecTimeout,
		Logger:      logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	h.reader, err = channel.NewCommandReader(channel.CommandReaderConfig{
		Path:         paths.Command,
		PollInterval: cfg.WatchPollInterval,
		OnCommand:    h.onCommand,
		OnReject:     func(resp protocol.Response) { _ = h.writeResponse(resp) },
		Logger:       logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return h, nil
}

// ID returns the session id.
func (h *Host) ID() string {
	return h.id
}

// Paths returns the session's files.
func (h *Host) Paths() protocol.Paths {
	return h.publisher.Paths()
}

// Done is closed once the host has shut down, either through Close or because
// its session was reclaimed.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Start registers the session and begins serving commands.
func (h *Host) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(tracing.WithSessionID(ctx, h.ID()))

	if err := h.publisher.Start(h.ctx); err != nil {
		h.cancel()
		return fmt.Errorf("failed to register session: %w", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.reader.Run(h.ctx); err != nil {
			h.logger.Error().Err(err).Msg("Command reader stopped")
		}
	}()

	h.logger.Info().Str("dir", h.Paths().Command).Msg("Session host started")

	return nil
}

func (h *Host) onCommand(cmd protocol.Command) {
	h.queue.Submit(h.ctx, cmd)
}

func (h *Host) writeResponse(resp protocol.Response) error {
	err := h.writer.Write(resp)
	if errors.Is(err, channel.ErrChannelGone) {
		h.logger.Warn().
			Str("command_id", resp.ID).
			Msg("Response log is gone, dropping response")
		return nil
	}
	return err
}

func (h *Host) onLost() {
	h.logger.Warn().Msg("Session was reclaimed, shutting down host")
	h.Close()
}

// Close stops reading commands, finishes or fails in-flight ones and removes
// the session's files. Safe to call more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()
		h.queue.Close()
		h.publisher.Stop()
		close(h.done)

		h.logger.Info().Msg("Session host stopped")
	})
	return nil
}
