// Package tracing exports request traces over OTLP gRPC.
//
// Setup installs a global OpenTelemetry provider with W3C Trace
// Context propagation and parent-based ratio sampling. HTTPMiddleware
// opens one server span per request and continues traces started by
// callers. When tracing is disabled the package hands out noop
// implementations, so the rest of the codebase never checks a flag.
//
// Log lines carry trace_id and span_id automatically; the logging
// package lifts them from the request context.
package tracing
