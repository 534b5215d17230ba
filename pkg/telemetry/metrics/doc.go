// Package metrics exposes the proxy's Prometheus metrics.
//
// One Collector owns a private registry and three metric groups: the
// HTTP surface (request counts, latency, in-flight gauge, recorded by
// HTTPMiddleware with normalized path labels), upstream provider calls
// (per-provider/model counts, latency, and token accounting, recorded
// by the request orchestrator), and scrape-time gauges over the
// in-process caches. A cardinality limiter funnels unexpected model
// label growth into an "other" bucket.
//
// The whole package is a no-op when telemetry.metrics.enabled is
// false; recording methods stay safe to call either way.
package metrics
