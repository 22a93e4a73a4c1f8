package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/vsbridge/internal/config"
	"github.com/harun/vsbridge/internal/daemon"
	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/host"
	"github.com/harun/vsbridge/pkg/protocol"
	"github.com/harun/vsbridge/pkg/toolexecutor"
)

var (
	hostLabel       string
	hostWorkspace   string
	hostMetricsAddr string
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run a session host answering the built-in tools",
	Long: `Register a session in the shared directory and answer commands with the
built-in tools (ping, echo, sleep, session) until interrupted. Useful for
exercising callers without an editor.`,
	Args: cobra.NoArgs,
	RunE: runHost,
}

func init() {
	hostCmd.Flags().StringVar(&hostLabel, "label", "", "window title advertised in the session metadata")
	hostCmd.Flags().StringVar(&hostWorkspace, "workspace", "", "workspace advertised in the session metadata (default is the working directory)")
	hostCmd.Flags().StringVar(&hostMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if hostLabel != "" {
		cfg.Host.Label = hostLabel
	}
	if hostMetricsAddr != "" {
		cfg.Metrics.Addr = hostMetricsAddr
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Close()

	d := daemon.New(cfg, log.GetZerolog())

	svc, err := newHostService(cfg, hostDescriptor(cfg, hostWorkspace), log.GetZerolog(), d.Metrics())
	if err != nil {
		return err
	}
	svc.out = cmd.OutOrStdout()
	svc.status = d.Status
	d.Add(svc)

	return d.Run(cmd.Context())
}

// hostDescriptor builds the metadata a host advertises.
func hostDescriptor(cfg *config.Config, workspace string) protocol.Descriptor {
	if workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			workspace = wd
		}
	}

	label := cfg.Host.Label
	if label == "" && workspace != "" {
		label = filepath.Base(workspace)
	}

	return protocol.Descriptor{
		"workspace":   workspace,
		"windowTitle": label,
		"pid":         os.Getpid(),
	}
}

// hostService runs one session host as a daemon service.
type hostService struct {
	host *host.Host

	// out receives a one-line banner once the session is published.
	out    io.Writer
	status func() daemon.Status
}

func newHostService(cfg *config.Config, descriptor protocol.Descriptor, logger zerolog.Logger, m *metrics.Metrics) (*hostService, error) {
	policy := &toolexecutor.ToolPolicy{
		Allow: cfg.Host.Tools.Allow,
		Deny:  cfg.Host.Tools.Deny,
	}
	if err := policy.Validate(logger); err != nil {
		return nil, fmt.Errorf("invalid tool policy: %w", err)
	}

	sessionID := protocol.NewSessionID()

	executor := toolexecutor.New(toolexecutor.Config{
		Policy: policy,
		Logger: logger,
	})
	if err := toolexecutor.RegisterBuiltins(executor, sessionID, descriptor); err != nil {
		return nil, err
	}

	h, err := host.New(host.Config{
		Dir:               cfg.Dir,
		SessionID:         sessionID,
		Descriptor:        descriptor,
		Executor:          executor,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval(),
		WatchPollInterval: cfg.Transport.WatchPollInterval(),
		MaxConcurrent:     cfg.Host.MaxConcurrent,
		ExecTimeout:       cfg.Host.ExecTimeout(),
		Logger:            logger,
		Metrics:           m,
	})
	if err != nil {
		return nil, err
	}

	return &hostService{host: h}, nil
}

func (s *hostService) Name() string { return "host" }

// Run registers the session and serves it until ctx is cancelled or the
// session is reclaimed.
func (s *hostService) Run(ctx context.Context) error {
	if err := s.host.Start(ctx); err != nil {
		return err
	}
	defer s.host.Close()

	s.announce()

	select {
	case <-ctx.Done():
		return nil
	case <-s.host.Done():
		return fmt.Errorf("session %s was reclaimed", s.host.ID())
	}
}

func (s *hostService) announce() {
	if s.out == nil {
		return
	}
	fmt.Fprintf(s.out, "Hosting session %s in %s\n", s.host.ID(), filepath.Dir(s.host.Paths().Metadata))
	if s.status == nil {
		return
	}
	if addr := s.status().MetricsAddr; addr != "" {
		fmt.Fprintf(s.out, "Metrics: http://%s/metrics\n", addr)
	}
}
