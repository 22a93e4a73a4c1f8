package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the vsbridge configuration
type Config struct {
	// Shared directory holding session files. Empty means ~/.vs-claude.
	Dir string `json:"dir" mapstructure:"dir"`

	Transport TransportConfig `json:"transport" mapstructure:"transport"`
	Timeouts  TimeoutsConfig  `json:"timeouts" mapstructure:"timeouts"`
	Host      HostConfig      `json:"host" mapstructure:"host"`
	MCP       MCPConfig       `json:"mcp" mapstructure:"mcp"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `json:"tracing" mapstructure:"tracing"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// TransportConfig holds the file transport timings
type TransportConfig struct {
	StaleThresholdMs    int `json:"stale_threshold_ms" mapstructure:"stale_threshold_ms"`
	HeartbeatIntervalMs int `json:"heartbeat_interval_ms" mapstructure:"heartbeat_interval_ms"`
	PollIntervalMs      int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	WatchPollIntervalMs int `json:"watch_poll_interval_ms" mapstructure:"watch_poll_interval_ms"`
}

// TimeoutsConfig holds caller timeout bands
type TimeoutsConfig struct {
	ShortMs int `json:"short_ms" mapstructure:"short_ms"`
	LongMs  int `json:"long_ms" mapstructure:"long_ms"`
}

// HostConfig holds settings for the demo session host
type HostConfig struct {
	Label         string           `json:"label" mapstructure:"label"`
	MaxConcurrent int              `json:"max_concurrent" mapstructure:"max_concurrent"`
	ExecTimeoutMs int              `json:"exec_timeout_ms" mapstructure:"exec_timeout_ms"`
	Tools         ToolPolicyConfig `json:"tools" mapstructure:"tools"`
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// MCPConfig holds MCP front-end settings
type MCPConfig struct {
	// Tools exposed in addition to "open".
	Tools     []string `json:"tools" mapstructure:"tools"`
	TimeoutMs int      `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// MetricsConfig holds Prometheus exporter settings
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set, e.g. "127.0.0.1:9464".
	Addr string `json:"addr" mapstructure:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			StaleThresholdMs:    5000,
			HeartbeatIntervalMs: 1000,
			PollIntervalMs:      50,
			WatchPollIntervalMs: 250,
		},
		Timeouts: TimeoutsConfig{
			ShortMs: 5000,
			LongMs:  30000,
		},
		Host: HostConfig{
			MaxConcurrent: 4,
			ExecTimeoutMs: 0,
			Tools: ToolPolicyConfig{
				Allow: []string{"*"},
				Deny:  []string{},
			},
		},
		MCP: MCPConfig{
			Tools:     []string{},
			TimeoutMs: 30000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   10,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// StaleThreshold returns the transport stale threshold
func (t TransportConfig) StaleThreshold() time.Duration { return millis(t.StaleThresholdMs) }

// HeartbeatInterval returns the heartbeat period
func (t TransportConfig) HeartbeatInterval() time.Duration { return millis(t.HeartbeatIntervalMs) }

// PollInterval returns the response poll period
func (t TransportConfig) PollInterval() time.Duration { return millis(t.PollIntervalMs) }

// WatchPollInterval returns the command log fallback poll period
func (t TransportConfig) WatchPollInterval() time.Duration { return millis(t.WatchPollIntervalMs) }

// Short returns the interactive timeout band
func (t TimeoutsConfig) Short() time.Duration { return millis(t.ShortMs) }

// Long returns the slow-operation timeout band
func (t TimeoutsConfig) Long() time.Duration { return millis(t.LongMs) }

// ExecTimeout returns the per-command execution bound, zero for none
func (h HostConfig) ExecTimeout() time.Duration { return millis(h.ExecTimeoutMs) }

// Timeout returns the MCP tool call timeout
func (m MCPConfig) Timeout() time.Duration { return millis(m.TimeoutMs) }

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return nil
}
