// Package logger builds the process logger: zerolog written to the console
// and optionally to a size-rotated file, with credentials masked before they
// reach either sink.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a zerolog.Logger that owns its file sink.
type Logger struct {
	zerolog.Logger

	file     io.WriteCloser
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // human-readable console lines instead of JSON
	Redaction bool   // mask credentials
	MaxSize   int    // MB before the file is rotated, 0 disables rotation
	MaxAge    int    // days to keep rotated files
	Compress  bool   // gzip rotated files

	// Output receives console output. Defaults to stderr: stdout may carry
	// a protocol stream (MCP over stdio).
	Output io.Writer
}

// New creates a logger and makes it the global zerolog logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	sinks := make([]io.Writer, 0, 2)
	if cfg.Console {
		sinks = append(sinks, consoleSink(cfg))
	}

	var file io.WriteCloser
	if cfg.File != "" {
		file, err = openFile(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, file)
	}

	var w io.Writer
	switch len(sinks) {
	case 0:
		w = io.Discard
	case 1:
		w = sinks[0]
	default:
		w = zerolog.MultiLevelWriter(sinks...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		w = redactor.Wrap(w)
	}

	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Code that runs before a logger is wired in falls back to the global one.
	log.Logger = zl

	return &Logger{
		Logger:   zl,
		file:     file,
		redactor: redactor,
	}, nil
}

func consoleSink(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.Pretty {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

func openFile(cfg Config) (io.WriteCloser, error) {
	if cfg.MaxSize > 0 {
		return NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.Logger
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   10,
		MaxAge:    7,
		Compress:  true,
	}
}
