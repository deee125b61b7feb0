// Package cmd implements the ekaya-streams command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ekaya-streams",
	Short: "Serve database entities as permissioned streams",
	Long: `ekaya-streams exposes declared entities as streams over websocket
and newline-delimited JSON connections.

Examples:

  ekaya-streams serve
  ekaya-streams schema create
  ekaya-streams streams
`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(streamsCmd)
}
