// Package server assembles the HTTP surface of the gateway: route
// table, middleware chain, TLS termination, and graceful lifecycle.
//
// The server owns no business logic. It wires the handler packages to
// Go 1.22 ServeMux patterns, stacks the cross-cutting middleware
// (recovery, request IDs, logging, metrics, CORS, audit), and gates
// the API surface behind credential resolution with an extra admin
// check on /v1/admin. Health probes and the Prometheus endpoint stay
// outside authentication so orchestrators and scrapers can reach them
// with no credentials.
//
// Start blocks until the context is cancelled, a SIGINT/SIGTERM
// arrives, or the listener fails; shutdown drains in-flight requests
// within the configured deadline.
package server
