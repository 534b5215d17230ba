package middleware

import (
	"net/http"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/security/auth"
)

// AuditMiddleware records one audit entry per handled request: method,
// path, the resolved principal (if any), response status, and duration.
// Recording is asynchronous and never fails the request; paths the audit
// config excludes are skipped entirely.
//
// It wraps authentication rather than running inside it, so rejected
// requests land in the trail too, with an empty username.
func AuditMiddleware(svc *audit.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if svc == nil || !svc.ShouldRecord(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx, resolvedPrincipal := auth.WithPrincipalCapture(r.Context())
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r.WithContext(ctx))

			rec := &audit.Record{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rw.statusCode,
				DurationMS: time.Since(start).Milliseconds(),
				RequestID:  GetRequestID(r.Context()),
				Metadata:   audit.MetadataFromRequest(r, svc.SensitiveHeaders()),
			}
			if p := resolvedPrincipal(); p != nil {
				rec.Username = p.Username
				rec.AuthType = string(p.Kind)
			}

			svc.Record(rec)
		})
	}
}
