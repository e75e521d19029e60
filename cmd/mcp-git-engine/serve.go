package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcp-git/engine/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine and run its background maintenance loops",
	Long: `Start the engine: opens the store, wires the workspace and task
managers, and runs their background cleanup loops until interrupted. The
RPC transport that calls into the resulting service.Facade is wired by the
process embedding this engine; this command alone just keeps the
maintenance loops alive for standalone operation and health checking.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.New(debug, app.WithConfigPath(configPath))
		if err != nil {
			return err
		}

		if a.Config.HasWarnings() {
			for _, w := range a.Config.Warnings {
				a.Logger.Warn(w)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a.Start(ctx)
		a.Logger.Info("engine started", "workspace_path", a.Config.WorkspacePath, "database_path", a.Config.DatabasePath)

		<-ctx.Done()
		a.Logger.Info("shutting down")
		return a.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
