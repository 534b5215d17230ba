package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a JSON or YAML file, selected by
// extension (.json, .yaml, .yml). It applies default values, validates
// the result, and returns any errors. Environment variables are not
// consulted; use LoadWithEnvOverrides for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration file extension %q (use .json, .yaml, or .yml)", filepath.Ext(path))
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration from a file and applies
// environment variable overrides. Two conventions are honored:
//
// Well-known deployment variables map onto specific fields:
//
//	DB_TYPE, DB_URL           database backend selection
//	KEYCLOAK_URL              auth.keycloak.url
//	KEYCLOAK_REALM            auth.keycloak.realm
//	KEYCLOAK_JWKS_CACHE_TTL   auth.keycloak.public_key_cache_ttl (seconds)
//	JWT_SECRET                auth.jwt.secret
//	JWT_ALGORITHM             auth.jwt.algorithm
//	OAUTH_ISSUER              auth.jwt.issuer
//	OAUTH_AUDIENCE            auth.jwt.audience
//	DEVELOPMENT_MODE          auth.development_mode
//
// Additionally, PORTUNUS_SECTION_FIELD variables override individual
// fields (e.g. PORTUNUS_SERVER_PORT, PORTUNUS_LOGGING_LEVEL).
// Environment variables always take precedence over file values.
//
// If path is empty, configuration is built from defaults and environment
// alone.
func LoadWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
		ApplyDefaults(cfg)
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	// Well-known deployment variables.
	if val := os.Getenv("DB_TYPE"); val != "" {
		cfg.Database.Type = val
	}
	if val := os.Getenv("DB_URL"); val != "" {
		cfg.Database.URL = val
	}
	if val := os.Getenv("KEYCLOAK_URL"); val != "" {
		cfg.Auth.Keycloak.URL = val
	}
	if val := os.Getenv("KEYCLOAK_REALM"); val != "" {
		cfg.Auth.Keycloak.Realm = val
	}
	if val := os.Getenv("KEYCLOAK_JWKS_CACHE_TTL"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			cfg.Auth.Keycloak.PublicKeyCacheTTL = i
		}
	}
	if val := os.Getenv("JWT_SECRET"); val != "" {
		cfg.Auth.JWT.Secret = val
	}
	if val := os.Getenv("JWT_ALGORITHM"); val != "" {
		cfg.Auth.JWT.Algorithm = val
	}
	if val := os.Getenv("OAUTH_ISSUER"); val != "" {
		cfg.Auth.JWT.Issuer = val
	}
	if val := os.Getenv("OAUTH_AUDIENCE"); val != "" {
		cfg.Auth.JWT.Audience = val
	}
	if val := os.Getenv("DEVELOPMENT_MODE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Auth.DevelopmentMode = b
		}
	}

	// PORTUNUS_SECTION_FIELD overrides.
	if val := os.Getenv("PORTUNUS_SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("PORTUNUS_SERVER_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = i
		}
	}
	if val := os.Getenv("PORTUNUS_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("PORTUNUS_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("PORTUNUS_SERVER_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}
	if val := os.Getenv("PORTUNUS_SERVER_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Server.TLS.Enabled = b
		}
	}
	if val := os.Getenv("PORTUNUS_SERVER_TLS_CERT_FILE"); val != "" {
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("PORTUNUS_SERVER_TLS_KEY_FILE"); val != "" {
		cfg.Server.TLS.KeyFile = val
	}

	if val := os.Getenv("PORTUNUS_DATABASE_TYPE"); val != "" {
		cfg.Database.Type = val
	}
	if val := os.Getenv("PORTUNUS_DATABASE_URL"); val != "" {
		cfg.Database.URL = val
	}
	if val := os.Getenv("PORTUNUS_DATABASE_DRIVER"); val != "" {
		cfg.Database.Driver = val
	}

	if val := os.Getenv("PORTUNUS_AUTH_PRINCIPAL_CACHE_TTL"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			cfg.Auth.PrincipalCacheTTL = i
		}
	}
	if val := os.Getenv("PORTUNUS_AUTH_JIT_PROVISIONING"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Auth.JITProvisioning = boolPtr(b)
		}
	}
	if val := os.Getenv("PORTUNUS_AUTH_JWT_ISSUER"); val != "" {
		cfg.Auth.JWT.Issuer = val
	}
	if val := os.Getenv("PORTUNUS_AUTH_JWT_AUDIENCE"); val != "" {
		cfg.Auth.JWT.Audience = val
	}
	if val := os.Getenv("PORTUNUS_AUTH_JWT_VERIFY_AUDIENCE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Auth.JWT.VerifyAudience = b
		}
	}

	if val := os.Getenv("PORTUNUS_HTTP_CLIENT_PROXY_URL"); val != "" {
		cfg.HTTPClient.ProxyURL = val
	}
	if val := os.Getenv("PORTUNUS_HTTP_CLIENT_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.HTTPClient.ConnectTimeout = d
		}
	}
	if val := os.Getenv("PORTUNUS_HTTP_CLIENT_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.HTTPClient.RequestTimeout = d
		}
	}

	if val := os.Getenv("PORTUNUS_RETRY_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			cfg.Retry.MaxAttempts = i
		}
	}
	if val := os.Getenv("PORTUNUS_RETRY_STRATEGY"); val != "" {
		cfg.Retry.Strategy = val
	}

	if val := os.Getenv("PORTUNUS_AUDIT_DB_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.DBEnabled = boolPtr(b)
		}
	}
	if val := os.Getenv("PORTUNUS_AUDIT_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			cfg.Audit.RetentionDays = i
		}
	}

	if val := os.Getenv("PORTUNUS_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("PORTUNUS_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("PORTUNUS_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = boolPtr(b)
		}
	}
	if val := os.Getenv("PORTUNUS_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("PORTUNUS_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	if val := os.Getenv("PORTUNUS_WATCH_CONFIG"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.WatchConfig = b
		}
	}
}
