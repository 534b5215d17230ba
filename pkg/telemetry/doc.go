// Package telemetry groups the gateway's observability concerns.
//
// # Components
//
//   - logging: structured slog setup with credential redaction and
//     trace correlation
//   - metrics: Prometheus collection for the HTTP surface, upstream
//     calls, and cache sizes
//   - tracing: OpenTelemetry tracing with OTLP export
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	logger, err := logging.Setup(cfg.Logging)
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	handler = collector.HTTPMiddleware()(handler)
//
//	tracer, err := tracing.Setup(cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(ctx)
//
//	checker := health.New(5 * time.Second)
//	checker.Register("database", store.Ping)
//
// Each component is wired independently at the composition root; there
// is no aggregate telemetry object.
package telemetry
