package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware authenticates every request through a Resolver and stores
// the resulting principal in the request context.
type Middleware struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewMiddleware creates authentication middleware around a resolver.
func NewMiddleware(resolver *Resolver, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		resolver: resolver,
		logger:   logger,
	}
}

// Handle wraps next with credential resolution. Requests that fail
// authentication get 401 with a detail body; resolver failures
// unrelated to the credential map to 500.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.resolver.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			var authErr *AuthenticationError
			if errors.As(err, &authErr) {
				m.logger.Warn("authentication failed",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeDetail(w, http.StatusUnauthorized, authErr.Message)
				return
			}

			m.logger.Error("credential resolution failed",
				"error", err,
				"path", r.URL.Path,
			)
			writeDetail(w, http.StatusInternalServerError, "authentication backend unavailable")
			return
		}

		m.logger.Debug("request authenticated",
			"username", principal.Username,
			"kind", principal.Kind,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireAdmin guards admin endpoints. It must run after Handle: the
// principal has to be in the context already.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "missing credentials")
			return
		}
		if !p.IsAdmin() {
			writeDetail(w, http.StatusForbidden, "admin group membership required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeDetail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
