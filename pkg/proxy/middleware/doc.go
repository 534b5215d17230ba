// Package middleware provides the HTTP middleware chain for the gateway.
//
// Every request passes through, from outermost to innermost:
//
//	Recovery → RequestID → Logging → CORS → Audit → Timeout → Auth → handler
//
// Recovery converts panics into 500s. RequestID assigns or propagates
// the X-Request-ID correlation header. Logging emits one structured line
// per request. Audit wraps authentication so rejected requests are
// recorded alongside successful ones; it hands each completed request to
// the audit service asynchronously. Timeout attaches the request
// deadline that upstream calls observe.
//
// Authentication itself lives in pkg/security/auth; this package only
// defines its position in the chain.
package middleware
