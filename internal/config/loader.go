package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/harun/vsbridge/pkg/protocol"
)

// ConfigFileName is the config file kept in the shared directory.
const ConfigFileName = "vsbridge.json"

// EnvPrefix prefixes environment overrides, e.g. VSBRIDGE_TIMEOUTS_LONG_MS.
const EnvPrefix = "VSBRIDGE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults make every key known to viper so env overrides apply even
	// without a config file.
	d := DefaultConfig()
	v.SetDefault("dir", d.Dir)
	v.SetDefault("transport.stale_threshold_ms", d.Transport.StaleThresholdMs)
	v.SetDefault("transport.heartbeat_interval_ms", d.Transport.HeartbeatIntervalMs)
	v.SetDefault("transport.poll_interval_ms", d.Transport.PollIntervalMs)
	v.SetDefault("transport.watch_poll_interval_ms", d.Transport.WatchPollIntervalMs)
	v.SetDefault("timeouts.short_ms", d.Timeouts.ShortMs)
	v.SetDefault("timeouts.long_ms", d.Timeouts.LongMs)
	v.SetDefault("host.label", d.Host.Label)
	v.SetDefault("host.max_concurrent", d.Host.MaxConcurrent)
	v.SetDefault("host.exec_timeout_ms", d.Host.ExecTimeoutMs)
	v.SetDefault("host.tools.allow", d.Host.Tools.Allow)
	v.SetDefault("host.tools.deny", d.Host.Tools.Deny)
	v.SetDefault("mcp.tools", d.MCP.Tools)
	v.SetDefault("mcp.timeout_ms", d.MCP.TimeoutMs)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.pretty", d.Logging.Pretty)

	return v
}

// Load loads the configuration from file and environment. A missing file
// yields defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := newViper()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set shared directory if not specified
	if cfg.Dir == "" {
		dir, err := protocol.DefaultDir()
		if err != nil {
			return nil, err
		}
		cfg.Dir = dir
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("dir", cfg.Dir)
	v.Set("transport", cfg.Transport)
	v.Set("timeouts", cfg.Timeouts)
	v.Set("host", cfg.Host)
	v.Set("mcp", cfg.MCP)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("logging", cfg.Logging)

	// Write config file
	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	dir, err := protocol.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
