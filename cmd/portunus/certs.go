package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Utilities for the TLS certificates the proxy serves with.

Subcommands:
  generate - Generate a self-signed certificate for testing
  validate - Validate a certificate and key pair
  info     - Display certificate details

Examples:
  # Generate a self-signed certificate for local testing
  portunus certs generate --host localhost

  # Validate certificate and key before a rollout
  portunus certs validate --cert server.crt --key server.key

  # Display certificate information
  portunus certs info server.crt`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
