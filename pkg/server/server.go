package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/config"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/proxy"
	"fulcrum-hq/portunus/pkg/proxy/handlers"
	"fulcrum-hq/portunus/pkg/proxy/middleware"
	"fulcrum-hq/portunus/pkg/proxy/types"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/telemetry/health"
	"fulcrum-hq/portunus/pkg/telemetry/metrics"
	"fulcrum-hq/portunus/pkg/telemetry/tracing"
	"fulcrum-hq/portunus/pkg/usage"
)

// Deps carries the wired services the server exposes over HTTP. The
// composition root builds them once and hands them over; the server
// only routes.
type Deps struct {
	Catalog      *catalog.Service
	Identity     *identity.Service
	Usage        *usage.Ledger
	Audit        *audit.Service
	Resolver     *auth.Resolver
	Orchestrator *proxy.Orchestrator
	Discoverer   handlers.ModelDiscoverer
	Health       *health.Checker
	Metrics      *metrics.Collector
	Tracer       *tracing.Tracer
	Build        health.BuildInfo
	Logger       *slog.Logger
}

// Server is the gateway's HTTP front. It serves the OpenAI-compatible
// inference routes, the admin API, health probes, and metrics.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	running      bool
}

// New creates a server over the loaded configuration and wired
// services.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
}

// Start runs the listener and blocks until the context is cancelled, a
// termination signal arrives, or the listener fails. On the first two
// it drains gracefully and returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	if s.cfg.Server.TLS.Enabled {
		tlsConfig, err := serverTLSConfig(s.cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("configuring TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("listening",
			"address", addr,
			"tls", s.cfg.Server.TLS.Enabled,
		)

		var err error
		if s.cfg.Server.TLS.Enabled {
			// Certificates come from the reloading getter inside
			// TLSConfig, not from static file arguments.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("listener: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received signal, shutting down", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown drains in-flight requests within the configured deadline.
// Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("draining", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("shutdown incomplete", "error", err)
				shutdownErr = fmt.Errorf("shutdown: %w", err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("stopped")
	})

	return shutdownErr
}

// IsRunning reports whether Start has been called and not yet shut
// down.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler builds the complete route table with the middleware chain
// applied. Exposed so tests can drive the server through httptest
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics are reachable without credentials.
	mux.HandleFunc("GET /v1/health", s.deps.Health.HealthHandler())
	mux.HandleFunc("GET /v1/health/live", s.deps.Health.LivenessHandler())
	mux.HandleFunc("GET /v1/health/ready", s.deps.Health.ReadinessHandler())
	mux.HandleFunc("GET /v1/health/detailed", s.deps.Health.DetailedHandler(s.deps.Build))
	if s.deps.Metrics != nil && s.deps.Metrics.Enabled() {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	authMW := auth.NewMiddleware(s.deps.Resolver, s.logger)
	mux.Handle("/v1/", authMW.Handle(s.apiRoutes()))
	mux.HandleFunc("/", notFound)

	// Outermost first: recovery catches everything below it, request
	// IDs exist before spans, spans open before the access log line so
	// log lines carry trace IDs, audit wraps authentication so rejected
	// requests are recorded with their status.
	var handler http.Handler = mux
	handler = middleware.AuditMiddleware(s.deps.Audit)(handler)
	handler = middleware.CORSMiddleware(s.corsConfig())(handler)
	if s.deps.Metrics != nil {
		handler = s.deps.Metrics.HTTPMiddleware()(handler)
	}
	handler = middleware.LoggingMiddleware(handler)
	if s.deps.Tracer != nil {
		handler = s.deps.Tracer.HTTPMiddleware()(handler)
	}
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// apiRoutes builds the authenticated surface: inference, model
// listing, whoami, and the admin API. Every route except the chat
// completion endpoint runs under the request timeout; chat completions
// may stream for longer than any sane request deadline, so that route
// relies on the write timeout instead.
func (s *Server) apiRoutes() http.Handler {
	completions := handlers.NewCompletionsHandler(s.deps.Orchestrator, s.cfg.Server.MaxRequestBody, s.logger)
	models := handlers.NewModelsHandler(s.deps.Catalog, s.logger)
	whoami := handlers.NewWhoAmIHandler(s.deps.Resolver, s.logger)

	timed := middleware.TimeoutMiddleware(s.cfg.Server.RequestTimeout)

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat/completions", completions.Chat)
	api.Handle("POST /v1/completions", timed(http.HandlerFunc(completions.Completions)))
	api.Handle("GET /v1/models", timed(http.HandlerFunc(models.List)))
	api.Handle("GET /v1/whoami", timed(http.HandlerFunc(whoami.WhoAmI)))

	api.Handle("/v1/admin/", timed(auth.RequireAdmin(s.adminRoutes())))
	api.HandleFunc("/", notFound)
	return api
}

// adminRoutes builds the /v1/admin mux: catalog management, group and
// user administration, and the audit trail.
func (s *Server) adminRoutes() http.Handler {
	models := handlers.NewAdminModelsHandler(s.deps.Catalog, s.deps.Discoverer, s.logger)
	groups := handlers.NewAdminGroupsHandler(s.deps.Catalog, s.logger)
	users := handlers.NewAdminUsersHandler(s.deps.Identity, s.deps.Usage, s.logger)
	auditLogs := handlers.NewAdminAuditHandler(s.deps.Audit, s.logger)

	admin := http.NewServeMux()

	admin.HandleFunc("GET /v1/admin/models", models.List)
	admin.HandleFunc("POST /v1/admin/models", models.Create)
	admin.HandleFunc("POST /v1/admin/models/refresh", models.Refresh)
	admin.HandleFunc("GET /v1/admin/models/{id}", models.Get)
	admin.HandleFunc("DELETE /v1/admin/models/{id}", models.Delete)
	admin.HandleFunc("PATCH /v1/admin/models/{id}/status", models.UpdateStatus)
	admin.HandleFunc("GET /v1/admin/models/{id}/groups", models.ListGroups)
	admin.HandleFunc("POST /v1/admin/models/{id}/groups/{gid}", models.AddGroup)
	admin.HandleFunc("DELETE /v1/admin/models/{id}/groups/{gid}", models.RemoveGroup)

	admin.HandleFunc("GET /v1/admin/groups", groups.List)
	admin.HandleFunc("POST /v1/admin/groups", groups.Create)
	admin.HandleFunc("GET /v1/admin/groups/{id}", groups.Get)
	admin.HandleFunc("PUT /v1/admin/groups/{id}", groups.Update)
	admin.HandleFunc("DELETE /v1/admin/groups/{id}", groups.Delete)
	admin.HandleFunc("GET /v1/admin/groups/{id}/models", groups.ListModels)

	admin.HandleFunc("GET /v1/admin/users", users.List)
	admin.HandleFunc("POST /v1/admin/users", users.Create)
	admin.HandleFunc("GET /v1/admin/users/{id}", users.Get)
	admin.HandleFunc("PUT /v1/admin/users/{id}", users.Update)
	admin.HandleFunc("DELETE /v1/admin/users/{id}", users.Delete)
	admin.HandleFunc("POST /v1/admin/users/{id}/deactivate", users.Deactivate)
	admin.HandleFunc("POST /v1/admin/users/{id}/api-keys", users.CreateAPIKey)
	admin.HandleFunc("GET /v1/admin/users/{id}/api-keys", users.ListAPIKeys)
	admin.HandleFunc("DELETE /v1/admin/users/{id}/api-keys/{kid}", users.DeleteAPIKey)
	admin.HandleFunc("GET /v1/admin/users/{id}/token-usage", users.TokenUsage)
	admin.HandleFunc("GET /v1/admin/users/{id}/token-usage/details", users.TokenUsageDetails)

	admin.HandleFunc("GET /v1/admin/audit-logs", auditLogs.List)
	admin.HandleFunc("GET /v1/admin/audit-logs/export", auditLogs.Export)

	admin.HandleFunc("/", notFound)
	return admin
}

// corsConfig maps the file configuration onto the middleware's shape,
// keeping the permissive defaults for anything left unset.
func (s *Server) corsConfig() *middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	fileCfg := s.cfg.Server.CORS

	if fileCfg.Enabled != nil {
		cors.Enabled = *fileCfg.Enabled
	}
	if len(fileCfg.AllowedOrigins) > 0 {
		cors.AllowedOrigins = fileCfg.AllowedOrigins
	}
	if len(fileCfg.AllowedMethods) > 0 {
		cors.AllowedMethods = fileCfg.AllowedMethods
	}
	if len(fileCfg.AllowedHeaders) > 0 {
		cors.AllowedHeaders = fileCfg.AllowedHeaders
	}
	if fileCfg.MaxAge > 0 {
		cors.MaxAge = fileCfg.MaxAge
	}
	return cors
}

// notFound keeps unknown routes on the JSON error contract instead of
// the mux's plain-text default.
func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write(types.MarshalDetail("not found"))
}
