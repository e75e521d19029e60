package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version variables are set via ldflags at build time.
// Example: go build -ldflags "-X main.version=v1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := versionInfo{Version: version, Commit: commit, GoVersion: runtime.Version()}

		out := cmd.OutOrStdout()
		if jsonOutput {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "mcp-git-engine version %s\n", info.Version)
		fmt.Fprintf(out, "commit: %s\n", info.Commit)
		fmt.Fprintf(out, "go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output version information as JSON")
}
