package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	callSession string
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <tool> [args-json]",
	Short: "Send one command to an editor session",
	Long: `Send one command to an editor session and print the response data.
With a single live session --session may be omitted. With several, the
command fails and lists them so the call can be repeated with a session id.`,
	Example: `  vsbridge call ping
  vsbridge call open '{"type":"file","path":"/src/main.go"}' --session window-1700000000000-1a2b3c4d`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callSession, "session", "s", "", "target session id")
	callCmd.Flags().DurationVarP(&callTimeout, "timeout", "t", 0, "how long to wait for the response (default is the configured long timeout)")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	tool := args[0]

	var payload json.RawMessage
	if len(args) == 2 {
		payload = json.RawMessage(args[1])
		if !json.Valid(payload) {
			return fmt.Errorf("arguments must be valid JSON")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Close()

	gw, err := newGateway(cfg, log, nil)
	if err != nil {
		return err
	}

	resp, err := gw.Call(cmd.Context(), callSession, tool, payload, callTimeout)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderData(resp.Data))
	return nil
}

// renderData prints JSON strings bare and indents anything else.
func renderData(data json.RawMessage) string {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "null"
	}

	var str string
	if strings.HasPrefix(trimmed, `"`) && json.Unmarshal(data, &str) == nil {
		return str
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return trimmed
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return trimmed
	}
	return string(pretty)
}
