package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/providerfactory"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/security/secrets"
	"fulcrum-hq/portunus/pkg/server"
	"fulcrum-hq/portunus/pkg/storage"
	"fulcrum-hq/portunus/pkg/telemetry/health"
	"fulcrum-hq/portunus/pkg/telemetry/logging"
	"fulcrum-hq/portunus/pkg/telemetry/metrics"
	"fulcrum-hq/portunus/pkg/telemetry/tracing"
	"fulcrum-hq/portunus/pkg/usage"
)

var runFlags struct {
	port     int
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Portunus proxy server",
	Long: `Start the Portunus proxy server with the specified configuration.

The server authenticates callers, enforces per-model group access,
forwards OpenAI-compatible requests to the configured upstream
endpoints, and records token usage and an audit trail.

Examples:
  # Start with default config
  portunus run

  # Start with custom config
  portunus run --config /etc/portunus/config.yaml

  # Override listen port
  portunus run --port 8080

  # Validate config without starting server
  portunus run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flag overrides win over file and environment.
	if runFlags.port > 0 {
		cfg.Server.Port = runFlags.port
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	return runProxy(cmd.Context(), cfg, logger)
}

// runProxy wires every component and blocks until the server drains on
// a termination signal or a component fails.
func runProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fmt.Printf("Portunus v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	tracer, err := tracing.Setup(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("configuring tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := storage.Open(storageConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	fmt.Printf("✓ Storage ready (%s)\n", cfg.Database.Type)

	secretsManager := secrets.NewManager(
		[]secrets.SecretProvider{secrets.NewEnvProvider("")},
		secrets.CacheConfig{Enabled: true, TTL: 5 * time.Minute, MaxSize: 256},
	)

	cat := catalog.NewService(store, logger)
	ids := identity.NewService(store, logger)
	ledger := usage.NewLedger(store, logger)

	resolver, err := buildResolver(ctx, cfg, ids, secretsManager, logger)
	if err != nil {
		return err
	}

	forwarders, err := buildForwarders(ctx, cfg, secretsManager, logger)
	if err != nil {
		return err
	}

	auditSvc := audit.NewService(auditConfig(cfg.Audit), store, forwarders, logger)
	defer auditSvc.Close()

	pruner := audit.NewPruner(auditSvc, cfg.Audit.RetentionDays, cfg.Audit.RetentionSchedule, logger)
	if err := pruner.Start(ctx); err != nil {
		logger.Warn("audit retention scheduler not started", "error", err)
	} else {
		defer pruner.Stop()
	}

	adapters := providerfactory.NewManager(cfg, secretsManager, logger)
	defer adapters.Close()
	fmt.Printf("✓ Upstream endpoints configured (%d)\n", len(cfg.ModelConfigs))

	orch := proxy.NewOrchestrator(cat, adapters, ledger, logger)

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	collector.RegisterCacheSize("principals", resolver.CacheSize)
	collector.RegisterCacheSize("adapters", adapters.Size)
	orch.SetMetrics(collector)

	checker := health.New(5 * time.Second)
	checker.Register("database", store.Ping)

	srv := server.New(cfg, server.Deps{
		Catalog:      cat,
		Identity:     ids,
		Usage:        ledger,
		Audit:        auditSvc,
		Resolver:     resolver,
		Orchestrator: orch,
		Discoverer:   adapters,
		Health:       checker,
		Metrics:      collector,
		Tracer:       tracer,
		Build: health.BuildInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
			GoVersion: runtime.Version(),
		},
		Logger: logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.WatchConfig {
		watcher, err := config.NewWatcher(cfgFile, logger)
		if err != nil {
			logger.Warn("config watcher not started", "error", err)
		} else {
			g.Go(func() error {
				return watcher.Watch(gctx, func(next *config.Config) {
					adapters.Reload(next)
				})
			})
			fmt.Println("✓ Watching configuration for endpoint changes")
		}
	}

	g.Go(func() error {
		// Start returns once the listener has drained; cancel so the
		// config watcher exits and Wait does not hang on it.
		defer cancel()
		return srv.Start(gctx)
	})

	fmt.Printf("✓ Listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("proxy stopped")
	return nil
}

// storageConfig maps the database configuration block onto the storage
// layer's options.
func storageConfig(dc config.DatabaseConfig) storage.Config {
	wal := true
	if dc.WALMode != nil {
		wal = *dc.WALMode
	}
	return storage.Config{
		Type:            dc.Type,
		URL:             dc.URL,
		Driver:          dc.Driver,
		MaxOpenConns:    dc.MaxOpenConns,
		MaxIdleConns:    dc.MaxIdleConns,
		ConnMaxLifetime: dc.ConnMaxLifetime,
		BusyTimeout:     dc.BusyTimeout,
		WALMode:         wal,
	}
}

func auditConfig(ac config.AuditConfig) audit.Config {
	dbEnabled := true
	if ac.DBEnabled != nil {
		dbEnabled = *ac.DBEnabled
	}
	return audit.Config{
		DBEnabled:        dbEnabled,
		QueueSize:        ac.QueueSize,
		WriteTimeout:     ac.WriteTimeout,
		ExcludePaths:     ac.ExcludePaths,
		SensitiveHeaders: ac.SensitiveHeaders,
	}
}

// buildResolver assembles credential resolution from the auth block.
// The JWT secret may be a secret reference and is resolved here, once;
// Keycloak key fetching is wired only when a realm URL is configured.
func buildResolver(ctx context.Context, cfg *config.Config, ids *identity.Service, sm *secrets.Manager, logger *slog.Logger) (*auth.Resolver, error) {
	jwtSecret := ""
	if cfg.Auth.JWT.Secret != "" {
		resolved, err := sm.ResolveValue(ctx, cfg.Auth.JWT.Secret)
		if err != nil {
			return nil, fmt.Errorf("resolving JWT secret: %w", err)
		}
		jwtSecret = resolved
	}

	var keys *auth.KeycloakKeys
	if cfg.Auth.Keycloak.URL != "" {
		keys = auth.NewKeycloakKeys(auth.KeycloakConfig{
			URL:       cfg.Auth.Keycloak.URL,
			Realm:     cfg.Auth.Keycloak.Realm,
			CacheTTL:  time.Duration(cfg.Auth.Keycloak.PublicKeyCacheTTL) * time.Second,
			CacheSize: cfg.Auth.Keycloak.PublicKeyCacheSize,
		}, nil, logger)
	}

	jit := true
	if cfg.Auth.JITProvisioning != nil {
		jit = *cfg.Auth.JITProvisioning
	}

	return auth.NewResolver(auth.Config{
		DevelopmentMode:    cfg.Auth.DevelopmentMode,
		JITProvisioning:    jit,
		PrincipalCacheTTL:  time.Duration(cfg.Auth.PrincipalCacheTTL) * time.Second,
		PrincipalCacheSize: cfg.Auth.PrincipalCacheSize,
		JWTSecret:          jwtSecret,
		JWTAlgorithm:       cfg.Auth.JWT.Algorithm,
		Issuer:             cfg.Auth.JWT.Issuer,
		Audience:           cfg.Auth.JWT.Audience,
		VerifyAudience:     cfg.Auth.JWT.VerifyAudience,
	}, ids, keys, logger), nil
}

// buildForwarders constructs the configured audit sinks. Forwarder
// header values may carry secret references and are resolved here.
func buildForwarders(ctx context.Context, cfg *config.Config, sm *secrets.Manager, logger *slog.Logger) ([]audit.Forwarder, error) {
	var fwd []audit.Forwarder

	if cfg.Forwarders.Print.Enabled {
		fwd = append(fwd, audit.NewPrintForwarder(cfg.Forwarders.Print.Level, logger))
	}

	for _, hc := range cfg.Forwarders.HTTP {
		if !hc.Enabled {
			continue
		}
		headers := make(map[string]string, len(hc.Headers))
		for name, value := range hc.Headers {
			resolved, err := sm.ResolveValue(ctx, value)
			if err != nil {
				return nil, fmt.Errorf("resolving header %s for forwarder %s: %w", name, hc.Name, err)
			}
			headers[name] = resolved
		}
		fwd = append(fwd, audit.NewHTTPForwarder(hc.Name, hc.URL, headers,
			time.Duration(hc.TimeoutSeconds)*time.Second, hc.RetryCount, nil))
	}

	return fwd, nil
}
