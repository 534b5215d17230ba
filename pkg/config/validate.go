package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validProviders = map[string]bool{
	"openai":    true,
	"azure":     true,
	"unique":    true,
	"anthropic": true,
	"mistral":   true,
	"cohere":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for errors that would prevent the
// server from operating correctly. It returns the first error found.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls requires both cert_file and key_file when enabled")
		}
		if v := cfg.Server.TLS.MinVersion; v != "1.2" && v != "1.3" {
			return fmt.Errorf("server.tls.min_version must be \"1.2\" or \"1.3\", got %q", v)
		}
	}

	switch cfg.Database.Type {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("database.type must be one of sqlite, postgres, memory; got %q", cfg.Database.Type)
	}
	if cfg.Database.Type == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres backend")
	}
	if cfg.Database.Type == "sqlite" {
		if d := cfg.Database.Driver; d != "modernc" && d != "cgo" {
			return fmt.Errorf("database.driver must be \"modernc\" or \"cgo\", got %q", d)
		}
	}

	if cfg.Auth.Keycloak.URL != "" {
		if _, err := url.Parse(cfg.Auth.Keycloak.URL); err != nil {
			return fmt.Errorf("auth.keycloak.url is not a valid URL: %w", err)
		}
		if cfg.Auth.Keycloak.Realm == "" {
			return fmt.Errorf("auth.keycloak.realm is required when auth.keycloak.url is set")
		}
	}
	switch cfg.Auth.JWT.Algorithm {
	case "", "RS256", "HS256":
	default:
		return fmt.Errorf("auth.jwt.algorithm must be RS256 or HS256, got %q", cfg.Auth.JWT.Algorithm)
	}

	switch cfg.Retry.Strategy {
	case "exponential", "fixed", "random_jitter":
	default:
		return fmt.Errorf("retry.strategy must be one of exponential, fixed, random_jitter; got %q", cfg.Retry.Strategy)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay > cfg.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%s) exceeds retry.max_delay (%s)", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}

	seen := make(map[string]bool, len(cfg.ModelConfigs))
	for i, mc := range cfg.ModelConfigs {
		if err := validateModelConfig(i, mc); err != nil {
			return err
		}
		if seen[mc.URL] {
			return fmt.Errorf("model_configs[%d]: duplicate url %q", i, mc.URL)
		}
		seen[mc.URL] = true
	}

	for i, fwd := range cfg.Forwarders.HTTP {
		if !fwd.Enabled {
			continue
		}
		if fwd.URL == "" {
			return fmt.Errorf("forwarders.http[%d]: url is required", i)
		}
		u, err := url.Parse(fwd.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("forwarders.http[%d]: invalid url %q", i, fwd.URL)
		}
	}
	if cfg.Forwarders.Print.Enabled && !validLogLevels[cfg.Forwarders.Print.Level] {
		return fmt.Errorf("forwarders.print.level must be one of debug, info, warn, error; got %q", cfg.Forwarders.Print.Level)
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if f := cfg.Logging.Format; f != "json" && f != "text" {
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", f)
	}

	if cfg.Telemetry.Tracing.Enabled && cfg.Telemetry.Tracing.Endpoint == "" {
		return fmt.Errorf("telemetry.tracing.endpoint is required when tracing is enabled")
	}
	if r := cfg.Telemetry.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.tracing.sample_ratio must be between 0.0 and 1.0, got %g", r)
	}

	if cfg.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative, got %d", cfg.Audit.RetentionDays)
	}

	return nil
}

func validateModelConfig(i int, mc ModelConfig) error {
	if mc.URL == "" {
		return fmt.Errorf("model_configs[%d]: url is required", i)
	}
	u, err := url.Parse(mc.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("model_configs[%d]: invalid url %q", i, mc.URL)
	}

	provider := strings.ToLower(mc.Provider)
	if !validProviders[provider] {
		return fmt.Errorf("model_configs[%d]: unknown provider %q", i, mc.Provider)
	}

	if provider == "azure" && mc.APIVersion == "" {
		return fmt.Errorf("model_configs[%d]: api_version is required for azure endpoints", i)
	}
	if provider != "azure" && mc.Azure != nil {
		return fmt.Errorf("model_configs[%d]: azure credentials given for non-azure provider %q", i, mc.Provider)
	}
	if mc.Azure != nil {
		a := mc.Azure
		if a.TenantID == "" || a.ClientID == "" || a.ClientSecret == "" ||
			a.SubscriptionID == "" || a.ResourceGroup == "" || a.ResourceName == "" {
			return fmt.Errorf("model_configs[%d]: azure management credentials are incomplete", i)
		}
	}

	if provider == "unique" {
		if mc.Unique == nil || mc.Unique.AppID == "" || mc.Unique.CompanyID == "" {
			return fmt.Errorf("model_configs[%d]: unique endpoints require app_id and company_id", i)
		}
	}

	return nil
}
