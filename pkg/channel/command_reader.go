package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/protocol"
)

// DefaultWatchPollInterval is the fallback re-check period used in addition
// to file system notifications.
const DefaultWatchPollInterval = 250 * time.Millisecond

// CommandHandler receives every parsed command, in log order.
type CommandHandler func(cmd protocol.Command)

// RejectHandler receives a failure response for a record that could be
// correlated by id but not executed.
type RejectHandler func(resp protocol.Response)

// CommandReaderConfig holds configuration for a CommandReader
type CommandReaderConfig struct {
	Path         string
	PollInterval time.Duration
	OnCommand    CommandHandler
	OnReject     RejectHandler
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// CommandReader tails a session's command log and hands each complete record
// to a handler. File system events are only a hint that something changed; the
// tailer decides what is new by comparing the file length with its cursor.
type CommandReader struct {
	tailer       *Tailer
	pollInterval time.Duration
	onCommand    CommandHandler
	onReject     RejectHandler
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewCommandReader creates a reader starting at the beginning of the log.
func NewCommandReader(cfg CommandReaderConfig) (*CommandReader, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("command log path is required")
	}
	if cfg.OnCommand == nil {
		return nil, fmt.Errorf("command handler is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWatchPollInterval
	}

	return &CommandReader{
		tailer:       NewTailer(cfg.Path, 0),
		pollInterval: cfg.PollInterval,
		onCommand:    cfg.OnCommand,
		onReject:     cfg.OnReject,
		logger:       cfg.Logger.With().Str("component", "command_reader").Logger(),
		metrics:      cfg.Metrics,
	}, nil
}

// Run watches the log until ctx is cancelled. If a native watcher cannot be
// created the reader falls back to polling alone.
func (r *CommandReader) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn().Err(err).Msg("File watcher unavailable, polling only")
	} else {
		defer watcher.Close()
		// Watch the directory: the log may be created after the watch starts
		if err := watcher.Add(filepath.Dir(r.tailer.Path())); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to watch command directory, polling only")
		} else {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.Drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.tailer.Path()) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				r.Drain()
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			r.logger.Error().Err(err).Msg("Command watcher error")

		case <-ticker.C:
			r.Drain()
		}
	}
}

// Drain processes every complete record appended since the last call and
// returns how many commands were handed to the handler.
func (r *CommandReader) Drain() int {
	lines, err := r.tailer.ReadLines()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to read command log")
		return 0
	}

	handled := 0
	for _, line := range lines {
		cmd, err := ParseCommand(line)
		if err != nil {
			r.metrics.RecordMalformed("command")
			r.reject(cmd.ID, err, line)
			continue
		}
		r.onCommand(cmd)
		handled++
	}

	return handled
}

func (r *CommandReader) reject(id string, err error, line []byte) {
	if id == "" {
		r.logger.Warn().
			Err(err).
			Int("bytes", len(line)).
			Msg("Dropping malformed command without id")
		return
	}

	r.logger.Warn().
		Err(err).
		Str("command_id", id).
		Msg("Rejecting malformed command")

	if r.onReject != nil {
		r.onReject(protocol.Response{
			ID:      id,
			Success: false,
			Error:   fmt.Sprintf("invalid command: %v", err),
		})
	}
}

// ParseCommand decodes one command record. On failure the returned command
// carries the id when it could still be recovered from the record.
func ParseCommand(line []byte) (protocol.Command, error) {
	var cmd protocol.Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		var head struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(line, &head) == nil {
			return protocol.Command{ID: head.ID}, err
		}
		return protocol.Command{}, err
	}

	if cmd.ID == "" {
		return protocol.Command{}, fmt.Errorf("command has no id")
	}
	if cmd.Tool == "" {
		return protocol.Command{ID: cmd.ID}, fmt.Errorf("command has no tool")
	}

	return cmd, nil
}
