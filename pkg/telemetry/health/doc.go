// Package health implements the proxy's health endpoints.
//
// Four endpoints share one Checker. The plain health endpoint and the
// liveness probe are constant 200s: a live process with a failing
// dependency should be taken out of rotation, not restarted. The
// readiness probe runs every registered dependency check (database
// ping, audit queue) concurrently and answers 503 when any fails. The
// detailed endpoint adds build identity and process stats for
// operators.
//
// Checks are plain functions taking a context, each bounded by the
// checker's per-check timeout.
package health
