package config

import "time"

// Default values applied by ApplyDefaults when a field is unset.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8092
	DefaultDatabaseType    = "sqlite"
	DefaultDatabaseURL     = "portunus.db"
	DefaultSQLiteDriver    = "modernc"
	DefaultMetricsNS       = "portunus"
	DefaultTracingService  = "portunus"
	DefaultRetentionDays   = 90
	DefaultRetentionCron   = "0 3 * * *"
	DefaultPrincipalTTL    = 300
	DefaultKeycloakKeyTTL  = 3600
	DefaultKeycloakKeySize = 16
)

func boolPtr(v bool) *bool { return &v }

// ApplyDefaults fills unset fields with their documented defaults.
// It is called by Load before validation.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 600 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 300 * time.Second
	}
	if cfg.Server.MaxRequestBody == 0 {
		cfg.Server.MaxRequestBody = 10 * 1024 * 1024
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1024 * 1024
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = "1.2"
	}

	// CORS
	if cfg.Server.CORS.Enabled == nil {
		cfg.Server.CORS.Enabled = boolPtr(true)
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = 3600
	}

	// Database
	if cfg.Database.Type == "" {
		cfg.Database.Type = DefaultDatabaseType
	}
	if cfg.Database.URL == "" && cfg.Database.Type == "sqlite" {
		cfg.Database.URL = DefaultDatabaseURL
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultSQLiteDriver
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5000
	}
	if cfg.Database.WALMode == nil {
		cfg.Database.WALMode = boolPtr(true)
	}

	// Auth
	if cfg.Auth.JITProvisioning == nil {
		cfg.Auth.JITProvisioning = boolPtr(true)
	}
	if cfg.Auth.PrincipalCacheTTL == 0 {
		cfg.Auth.PrincipalCacheTTL = DefaultPrincipalTTL
	}
	if cfg.Auth.PrincipalCacheSize == 0 {
		cfg.Auth.PrincipalCacheSize = 1024
	}
	if cfg.Auth.Keycloak.PublicKeyCacheTTL == 0 {
		cfg.Auth.Keycloak.PublicKeyCacheTTL = DefaultKeycloakKeyTTL
	}
	if cfg.Auth.Keycloak.PublicKeyCacheSize == 0 {
		cfg.Auth.Keycloak.PublicKeyCacheSize = DefaultKeycloakKeySize
	}

	// HTTP client
	if cfg.HTTPClient.ConnectTimeout == 0 {
		cfg.HTTPClient.ConnectTimeout = 10 * time.Second
	}
	if cfg.HTTPClient.RequestTimeout == 0 {
		cfg.HTTPClient.RequestTimeout = 120 * time.Second
	}

	// Retry
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 4
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 120 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.Retry.Jitter == nil {
		cfg.Retry.Jitter = boolPtr(true)
	}
	if cfg.Retry.Strategy == "" {
		cfg.Retry.Strategy = "exponential"
	}

	// Audit
	if cfg.Audit.DBEnabled == nil {
		cfg.Audit.DBEnabled = boolPtr(true)
	}
	if cfg.Audit.ExcludePaths == nil {
		cfg.Audit.ExcludePaths = []string{"/v1/health", "/metrics"}
	}
	if cfg.Audit.SensitiveHeaders == nil {
		cfg.Audit.SensitiveHeaders = []string{"authorization", "api-key", "x-api-key", "cookie"}
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = 5 * time.Second
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultRetentionDays
	}
	if cfg.Audit.RetentionSchedule == "" {
		cfg.Audit.RetentionSchedule = DefaultRetentionCron
	}

	// Forwarders
	if cfg.Forwarders.Print.Level == "" {
		cfg.Forwarders.Print.Level = "info"
	}
	for i := range cfg.Forwarders.HTTP {
		fwd := &cfg.Forwarders.HTTP[i]
		if fwd.TimeoutSeconds == 0 {
			fwd.TimeoutSeconds = 10
		}
		if fwd.RetryCount == 0 {
			fwd.RetryCount = 2
		}
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.RedactSensitive == nil {
		cfg.Logging.RedactSensitive = boolPtr(true)
	}

	// Telemetry
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(true)
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNS
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = 0.1
	}
	if cfg.Telemetry.Tracing.Insecure == nil {
		cfg.Telemetry.Tracing.Insecure = boolPtr(true)
	}
}
