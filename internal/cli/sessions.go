package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/vsbridge/pkg/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	ageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var (
	sessionsOutput string
	sessionsMatch  string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live editor sessions",
	Long: `List every live session in the shared directory. Sessions whose heartbeat
is older than the stale threshold are reclaimed while listing.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVarP(&sessionsOutput, "output", "o", "table", "output format (table, json, yaml)")
	sessionsCmd.Flags().StringVar(&sessionsMatch, "match", "", "only list sessions whose label matches this glob")
	rootCmd.AddCommand(sessionsCmd)
}

// sessionView is the listing shape of one session.
type sessionView struct {
	ID            string              `json:"id" yaml:"id"`
	Label         string              `json:"label" yaml:"label"`
	LastHeartbeat time.Time           `json:"lastHeartbeat" yaml:"lastHeartbeat"`
	Age           string              `json:"age" yaml:"age"`
	Descriptor    protocol.Descriptor `json:"descriptor" yaml:"descriptor"`
}

func runSessions(cmd *cobra.Command, args []string) error {
	switch sessionsOutput {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (table, json, yaml)", sessionsOutput)
	}
	if sessionsMatch != "" && !doublestar.ValidatePattern(sessionsMatch) {
		return fmt.Errorf("invalid match pattern %q", sessionsMatch)
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

	sessions, err := gw.Sessions()
	if err != nil {
		return err
	}

	views := filterSessions(sessions, sessionsMatch, time.Now())

	out := cmd.OutOrStdout()
	switch sessionsOutput {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(views)
	default:
		return printSessionTable(out, views)
	}
}

func filterSessions(sessions []protocol.Session, pattern string, now time.Time) []sessionView {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		label := s.Descriptor.Label()
		if pattern != "" {
			if ok, _ := doublestar.Match(pattern, label); !ok {
				continue
			}
		}
		views = append(views, sessionView{
			ID:            s.ID,
			Label:         label,
			LastHeartbeat: s.LastHeartbeat.UTC(),
			Age:           formatDuration(now.Sub(s.LastHeartbeat)),
			Descriptor:    s.Descriptor,
		})
	}
	return views
}

func printSessionTable(out io.Writer, views []sessionView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(out, headerStyle.Render("No live sessions"))
		return err
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d live session(s)", len(views))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Label")+"\t"+titleStyle.Render("Heartbeat")+"\t")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n",
			idStyle.Render(v.ID),
			labelStyle.Render(v.Label),
			ageStyle.Render(v.Age+" ago"))
	}
	return w.Flush()
}
