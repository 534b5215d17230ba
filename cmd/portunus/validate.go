package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fulcrum-hq/portunus/pkg/config"
)

var validateFlags struct {
	env bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply defaults, and check it for errors.

The command prints a summary of what a server started from this file
would do: listen address, storage backend, upstream endpoints, and how
callers are authenticated. Nothing is started and nothing is written.

Examples:
  # Validate the default config
  portunus validate

  # Validate a specific file
  portunus validate --config /etc/portunus/config.yaml

  # Include environment variable overrides in the check
  portunus validate --env`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.env, "env", false, "apply environment variable overrides before validating")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	var (
		cfg *config.Config
		err error
	)
	if validateFlags.env {
		cfg, err = config.LoadWithEnvOverrides(cfgFile)
	} else {
		cfg, err = config.Load(cfgFile)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Println()

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	fmt.Printf("Server:    %s://%s:%d", scheme, cfg.Server.Host, cfg.Server.Port)
	if cfg.Server.TLS.Enabled && cfg.Server.TLS.ClientCAFile != "" {
		fmt.Print(" (mutual TLS)")
	}
	fmt.Println()

	fmt.Printf("Database:  %s", cfg.Database.Type)
	if cfg.Database.URL != "" {
		fmt.Printf(" (%s)", cfg.Database.URL)
	}
	fmt.Println()

	fmt.Printf("Endpoints: %d configured\n", len(cfg.ModelConfigs))
	for _, mc := range cfg.ModelConfigs {
		entry := fmt.Sprintf("  - %s (%s)", mc.URL, mc.Provider)
		if mc.TechnicalName != "" {
			entry += fmt.Sprintf(" model=%s", mc.TechnicalName)
		}
		fmt.Println(entry)
	}

	fmt.Print("Auth:      ")
	switch {
	case cfg.Auth.DevelopmentMode:
		fmt.Println("DEVELOPMENT MODE (credential-less requests allowed)")
	case cfg.Auth.Keycloak.URL != "" && cfg.Auth.JWT.Secret != "":
		fmt.Printf("API keys, Keycloak RS256 (%s/%s), HS256 shared secret\n",
			cfg.Auth.Keycloak.URL, cfg.Auth.Keycloak.Realm)
	case cfg.Auth.Keycloak.URL != "":
		fmt.Printf("API keys, Keycloak RS256 (%s/%s)\n",
			cfg.Auth.Keycloak.URL, cfg.Auth.Keycloak.Realm)
	case cfg.Auth.JWT.Secret != "":
		fmt.Println("API keys, HS256 shared secret")
	default:
		fmt.Println("API keys only")
	}

	audit := "disabled"
	if cfg.Audit.DBEnabled == nil || *cfg.Audit.DBEnabled {
		audit = fmt.Sprintf("enabled, retention %d days", cfg.Audit.RetentionDays)
	}
	fmt.Printf("Audit:     %s\n", audit)

	if cfg.Telemetry.Tracing.Enabled {
		fmt.Printf("Tracing:   %s (ratio %.2f)\n",
			cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRatio)
	}

	if cfg.Auth.DevelopmentMode {
		fmt.Println("\nWarning: development mode is enabled; do not use in production")
	}

	return nil
}
