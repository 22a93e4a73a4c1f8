package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/vsbridge/internal/daemon"
	"github.com/harun/vsbridge/pkg/mcpserver"
)

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve editor sessions to an MCP client over stdio",
	Long: `Run an MCP server on stdin/stdout. Each exposed tool forwards its call to
an editor session and returns the session's response. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveMetricsAddr != "" {
		cfg.Metrics.Addr = serveMetricsAddr
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Close()

	d := daemon.New(cfg, log.GetZerolog())

	gw, err := newGateway(cfg, log, d.Metrics())
	if err != nil {
		return err
	}

	server, err := mcpserver.New(mcpserver.Config{
		Name:    "vsbridge",
		Version: version,
		Caller:  gw,
		Tools:   cfg.MCP.Tools,
		Timeout: cfg.MCP.Timeout(),
		Logger:  log.GetZerolog(),
	})
	if err != nil {
		return err
	}

	d.Add(daemon.ServiceFunc{ServiceName: "mcp", Fn: server.Run})

	return d.Run(cmd.Context())
}
