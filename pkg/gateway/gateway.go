// Package gateway is the caller-facing side of the bridge: it picks a target
// session, writes a command and waits for the matching response.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/internal/tracing"
	"github.com/harun/vsbridge/pkg/channel"
	"github.com/harun/vsbridge/pkg/protocol"
	"github.com/harun/vsbridge/pkg/registry"
)

const (
	// DefaultPollInterval is how often the response log is checked.
	DefaultPollInterval = 50 * time.Millisecond
	// ShortTimeout suits interactive operations.
	ShortTimeout = 5 * time.Second
	// LongTimeout suits operations that may wait on the user or heavy work.
	LongTimeout = 30 * time.Second
)

// Config holds configuration for a Gateway
type Config struct {
	Registry     *registry.Registry
	PollInterval time.Duration
	ShortTimeout time.Duration
	LongTimeout  time.Duration
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Gateway sends commands to sessions. It holds no per-call state and may be
// used from many goroutines.
type Gateway struct {
	registry     *registry.Registry
	pollInterval time.Duration
	shortTimeout time.Duration
	longTimeout  time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// New creates a Gateway
func New(cfg Config) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = ShortTimeout
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = LongTimeout
	}

	return &Gateway{
		registry:     cfg.Registry,
		pollInterval: cfg.PollInterval,
		shortTimeout: cfg.ShortTimeout,
		longTimeout:  cfg.LongTimeout,
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		metrics:      cfg.Metrics,
	}, nil
}

// ShortTimeout returns the configured budget for interactive operations.
func (g *Gateway) ShortTimeout() time.Duration {
	return g.shortTimeout
}

// LongTimeout returns the configured budget for slow operations.
func (g *Gateway) LongTimeout() time.Duration {
	return g.longTimeout
}

// Sessions lists live sessions, reclaiming stale ones.
func (g *Gateway) Sessions() ([]protocol.Session, error) {
	return g.registry.LiveSessions()
}

// Resolve picks the target session. An empty sessionID selects the only live
// session; ambiguity is an error, never a guess.
func (g *Gateway) Resolve(sessionID string) (protocol.Session, error) {
	sessions, err := g.registry.LiveSessions()
	if err != nil {
		return protocol.Session{}, err
	}

	if sessionID != "" {
		for _, s := range sessions {
			if s.ID == sessionID {
				return s, nil
			}
		}
		g.metrics.RecordDiscoveryError("not_found")
		return protocol.Session{}, &SessionNotFoundError{SessionID: sessionID, Live: len(sessions)}
	}

	switch len(sessions) {
	case 0:
		g.metrics.RecordDiscoveryError("no_sessions")
		return protocol.Session{}, ErrNoSessions
	case 1:
		return sessions[0], nil
	default:
		g.metrics.RecordDiscoveryError("ambiguous")
		return protocol.Session{}, &AmbiguousSessionError{Candidates: sessions}
	}
}

// Call sends tool with args to the resolved session and waits up to timeout for
// its response. A response with Success false is returned with a nil error.
// timeout <= 0 uses the long timeout.
func (g *Gateway) Call(ctx context.Context, sessionID, tool string, args json.RawMessage, timeout time.Duration) (*protocol.Response, error) {
	if tool == "" {
		return nil, fmt.Errorf("tool cannot be empty")
	}
	if timeout <= 0 {
		timeout = g.longTimeout
	}

	session, err := g.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	cmd := protocol.Command{
		ID:   protocol.NewCommandID(tool),
		Tool: tool,
		Args: args,
	}

	ctx = tracing.WithSessionID(ctx, session.ID)
	ctx = tracing.WithCommand(ctx, cmd.ID, tool)
	ctx, span := tracing.StartSpan(ctx, "vsbridge.gateway", "gateway.call",
		attribute.Int64("timeout_ms", timeout.Milliseconds()))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, g.logger)

	// Capture the cursor before writing so only responses appended after this
	// call began are considered.
	tailer, err := channel.NewTailerAtEnd(session.Paths.Response)
	if err != nil {
		tracing.FailErr(span, err)
		return nil, fmt.Errorf("failed to open response log: %w", err)
	}
	reader := channel.NewResponseReader(tailer, logger, g.metrics)

	start := time.Now()
	if err := channel.AppendCommand(session.Paths.Command, cmd); err != nil {
		tracing.FailErr(span, err)
		return nil, fmt.Errorf("failed to write command: %w", err)
	}
	g.metrics.RecordCommandSent(tool)

	logger.Debug().Dur("timeout", timeout).Msg("Command sent")

	resp, err := g.await(ctx, reader, cmd.ID, timeout)
	elapsed := time.Since(start)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			timeoutErr.SessionID = session.ID
			g.metrics.RecordTimeout(tool)
			logger.Warn().Dur("timeout", timeout).Msg("Command timed out")
		}
		tracing.FailErr(span, err)
		return nil, err
	}

	g.metrics.RecordResponse(tool, resp.Success, elapsed)
	if !resp.Success {
		tracing.Fail(span, resp.Error)
	}

	logger.Debug().
		Bool("success", resp.Success).
		Dur("elapsed", elapsed).
		Msg("Response received")

	return resp, nil
}

func (g *Gateway) await(ctx context.Context, reader *channel.ResponseReader, id string, timeout time.Duration) (*protocol.Response, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		resp, err := reader.Poll(id)
		if err != nil {
			return nil, fmt.Errorf("failed to read response log: %w", err)
		}
		if resp != nil {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			// One last look; the response may have landed since the last tick
			if resp, err := reader.Poll(id); err == nil && resp != nil {
				return resp, nil
			}
			return nil, &TimeoutError{CommandID: id, Timeout: timeout}
		case <-ticker.C:
		}
	}
}
