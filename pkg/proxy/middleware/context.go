package middleware

// contextKey is a private key type so context values set here cannot
// collide with other packages.
type contextKey string

const (
	// RequestIDKey stores the per-request correlation ID.
	RequestIDKey contextKey = "request_id"

	// StartTimeKey stores the request arrival time for latency
	// calculation.
	StartTimeKey contextKey = "start_time"
)
