package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== vsbridge Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := *base
	validator := NewValidator()

	// Shared directory
	dir, err := w.prompt("Shared session directory", cfg.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir

	// Host label
	label, err := w.prompt("Label for sessions started with 'vsbridge host'", cfg.Host.Label)
	if err != nil {
		return nil, err
	}
	cfg.Host.Label = label

	// Extra MCP tools
	for {
		tools, err := w.prompt("Extra MCP tools, comma separated", strings.Join(cfg.MCP.Tools, ","))
		if err != nil {
			return nil, err
		}

		parsed := []string{}
		valid := true
		for _, tool := range strings.Split(tools, ",") {
			tool = strings.TrimSpace(tool)
			if tool == "" {
				continue
			}
			if err := validator.ValidateToolName(tool); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				valid = false
				break
			}
			parsed = append(parsed, tool)
		}
		if valid {
			cfg.MCP.Tools = parsed
			break
		}
	}

	// Long timeout
	for {
		value, err := w.prompt("Tool call timeout in milliseconds", strconv.Itoa(cfg.Timeouts.LongMs))
		if err != nil {
			return nil, err
		}
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			fmt.Fprintln(w.out, "Error: timeout must be a positive number")
			continue
		}
		cfg.Timeouts.LongMs = ms
		cfg.MCP.TimeoutMs = ms
		if cfg.Timeouts.ShortMs > ms {
			cfg.Timeouts.ShortMs = ms
		}
		break
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.prompt("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) prompt(question, current string) (string, error) {
	fmt.Fprintf(w.out, "%s [%s]: ", question, current)
	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return current, nil
	}
	return answer, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
