package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateToolName validates a tool name exposed over MCP or sent in a command
func (v *Validator) ValidateToolName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("tool name %q cannot contain whitespace", name)
	}
	return nil
}

// ValidateToolPattern validates an allow/deny glob
func (v *Validator) ValidateToolPattern(pattern string) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid tool pattern %q", pattern)
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address
func (v *Validator) ValidateListenAddr(addr string) error {
	if addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	t := cfg.Transport
	if t.StaleThresholdMs <= 0 {
		errors = append(errors, fmt.Errorf("transport.stale_threshold_ms must be > 0"))
	}
	if t.HeartbeatIntervalMs <= 0 {
		errors = append(errors, fmt.Errorf("transport.heartbeat_interval_ms must be > 0"))
	} else if t.HeartbeatIntervalMs >= t.StaleThresholdMs {
		errors = append(errors, fmt.Errorf("transport.heartbeat_interval_ms must be less than stale_threshold_ms"))
	}
	if t.PollIntervalMs <= 0 {
		errors = append(errors, fmt.Errorf("transport.poll_interval_ms must be > 0"))
	}
	if t.WatchPollIntervalMs <= 0 {
		errors = append(errors, fmt.Errorf("transport.watch_poll_interval_ms must be > 0"))
	}

	if cfg.Timeouts.ShortMs <= 0 || cfg.Timeouts.LongMs <= 0 {
		errors = append(errors, fmt.Errorf("timeouts must be > 0"))
	} else if cfg.Timeouts.ShortMs > cfg.Timeouts.LongMs {
		errors = append(errors, fmt.Errorf("timeouts.short_ms must not exceed timeouts.long_ms"))
	}

	if cfg.Host.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("host.max_concurrent must be >= 0"))
	}
	if cfg.Host.ExecTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("host.exec_timeout_ms must be >= 0"))
	}
	for _, pattern := range append(append([]string{}, cfg.Host.Tools.Allow...), cfg.Host.Tools.Deny...) {
		if err := v.ValidateToolPattern(pattern); err != nil {
			errors = append(errors, fmt.Errorf("host.tools: %w", err))
		}
	}

	for i, tool := range cfg.MCP.Tools {
		if err := v.ValidateToolName(tool); err != nil {
			errors = append(errors, fmt.Errorf("mcp.tools[%d]: %w", i, err))
		}
	}
	if cfg.MCP.TimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("mcp.timeout_ms must be >= 0"))
	}

	if err := v.ValidateListenAddr(cfg.Metrics.Addr); err != nil {
		errors = append(errors, fmt.Errorf("metrics.addr: %w", err))
	}

	if cfg.Host.Label != "" && strings.ContainsAny(cfg.Host.Label, "\n") {
		errors = append(errors, fmt.Errorf("host.label cannot span lines"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 || cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size and logging.max_age must be >= 0"))
	}

	return errors
}
