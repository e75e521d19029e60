// Package main implements the mcp-git-engine binary: the composition root
// for the Git orchestration engine. The RPC transport that drives it over
// standard input/output is an external collaborator outside this repo's
// scope; this binary exposes a minimal operational CLI surface (serve,
// version) around the same internal/app.App used by that transport.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	debug      bool
	configPath string

	rootCmd = &cobra.Command{
		Use:   "mcp-git-engine",
		Short: "Git orchestration engine for the Model Context Protocol",
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (overrides MCP_GIT_CONFIG and default locations)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
