package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/vsbridge/internal/config"
	"github.com/harun/vsbridge/internal/logger"
	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/gateway"
	"github.com/harun/vsbridge/pkg/registry"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	dir      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vsbridge",
	Short: "vsbridge - file-based bridge between tools and editor sessions",
	Long: `vsbridge connects short-lived callers to long-running editor sessions
through a shared directory. Sessions register themselves with a heartbeat,
callers append commands to a session's command log and wait for the matching
response.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vs-claude/vsbridge.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "", "shared session directory override (default is $HOME/.vs-claude)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if dir != "" {
		cfg.Dir = dir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Console output goes to out, never to
// stdout, which may carry the MCP stream.
func newLogger(cfg *config.Config, out io.Writer) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    out,
	})
}

// newGateway wires a registry and gateway over the configured directory.
func newGateway(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*gateway.Gateway, error) {
	reg := registry.New(registry.Config{
		Dir:            cfg.Dir,
		StaleThreshold: cfg.Transport.StaleThreshold(),
		Logger:         log.GetZerolog(),
		Metrics:        m,
	})

	return gateway.New(gateway.Config{
		Registry:     reg,
		PollInterval: cfg.Transport.PollInterval(),
		ShortTimeout: cfg.Timeouts.Short(),
		LongTimeout:  cfg.Timeouts.Long(),
		Logger:       log.GetZerolog(),
		Metrics:      m,
	})
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
