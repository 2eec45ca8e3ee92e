package cmd

import (
	"fmt"

	"github.com/debrepod/debrepod/internal/app"
	"github.com/debrepod/debrepod/internal/config"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the package tree and serve the generated APT repository",
	Long: `Watch the configured package root for changes, regenerating the signed
APT repository on each distribution's debounce window, and serve the
result over HTTP until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	return application.Run(ctx)
}
