package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "portunus",
	Short: "Portunus - authenticating reverse proxy for LLM APIs",
	Long: `Portunus is an authenticating, auditing reverse proxy for
OpenAI-compatible LLM APIs.

It fronts multiple upstream providers behind one endpoint, providing:
  - API key and JWT authentication with group-based model access
  - A managed model catalog with upstream discovery
  - Per-user, per-model token usage accounting
  - An audit trail of every request
  - Prometheus metrics and OpenTelemetry tracing`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
