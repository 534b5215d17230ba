package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

// RecoveryMiddleware converts handler panics into a 500 response. The
// panic and stack are logged; the client sees only a generic detail.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// net/http treats this panic value as a deliberate
				// connection abort; it must propagate.
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write(types.MarshalDetail("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
