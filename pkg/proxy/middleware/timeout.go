package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds request handling with a context deadline.
// Handlers and upstream calls observe the deadline through the request
// context; when it fires, the in-flight upstream call fails with a
// deadline error that the error mapper renders as 504. The deadline is
// attached rather than raced against the ResponseWriter, so streaming
// responses are never written to by two goroutines.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
