package cmd

import (
	"fmt"

	"github.com/debrepod/debrepod/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for viewing and validating configuration.`,
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	Long: `Display the currently loaded, defaulted, and validated configuration.

Examples:
  debrepod config show              # Show parsed configuration in YAML format`,
	RunE: runConfigShow,
}

// configValidateCmd validates the configuration without starting the server
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without starting the server",
	Long: `Load and validate the configuration, reporting any error, without
starting the watcher or the HTTP transport.`,
	RunE: runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if cfg.Signing.PrivateKeyPassphrase != "" {
		cfg.Signing.PrivateKeyPassphrase = "***REDACTED***"
	}
	if cfg.Auth.BasicPassword != "" {
		cfg.Auth.BasicPassword = "***REDACTED***"
	}

	output, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	fmt.Fprintln(realStdout, string(output))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(cfgFile); err != nil {
		return err
	}

	fmt.Fprintln(realStdout, "configuration is valid")
	return nil
}
