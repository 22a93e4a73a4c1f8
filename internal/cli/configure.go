package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/vsbridge/internal/config"
)

var (
	configInteractive bool
	configForce       bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the vsbridge configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file with the current settings. With --interactive
an interactive configuration wizard asks for the shared directory, host
label, exposed tools, timeout and log level.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInteractive, "interactive", "i", false, "run the interactive configuration wizard")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing configuration file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", configPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if configInteractive {
		wizard := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout())
		cfg, err = wizard.Run(cfg)
		if err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "Start a session with: vsbridge host")

	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// JSON is valid YAML: decoding it into a node keeps the json key names
	// and field order.
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	setBlockStyle(&node)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&node)
}

// setBlockStyle drops the flow style inherited from JSON input.
func setBlockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		setBlockStyle(c)
	}
}
