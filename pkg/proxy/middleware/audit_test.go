package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/security/auth"
	"fulcrum-hq/portunus/pkg/storage"
)

func newAuditService(t *testing.T, store *storage.Memory) *audit.Service {
	t.Helper()
	svc := audit.NewService(audit.Config{
		DBEnabled:        true,
		QueueSize:        16,
		ExcludePaths:     []string{"/v1/health", "/metrics"},
		SensitiveHeaders: []string{"authorization"},
	}, store, nil, nil)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func auditedRecords(t *testing.T, svc *audit.Service, store *storage.Memory) []audit.Record {
	t.Helper()
	// Close drains the queue so the worker has persisted everything.
	svc.Close()
	records, err := store.QueryAuditRecords(context.Background(), audit.Query{Limit: 100})
	if err != nil {
		t.Fatalf("QueryAuditRecords: %v", err)
	}
	return records
}

func TestAuditMiddlewareRecordsRequest(t *testing.T) {
	store := storage.NewMemory()
	svc := newAuditService(t, store)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	// Auth runs inside audit, like the real chain.
	authed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := &auth.Principal{Username: "alice", Kind: auth.KindAPIKey, Groups: []string{"g1"}}
		inner.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), p)))
	})
	wrapped := AuditMiddleware(svc)(authed)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/models", nil)
	req.Header.Set("Authorization", "Bearer sk-secret")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	records := auditedRecords(t, svc, store)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	rec := records[0]
	if rec.Method != http.MethodPost || rec.Path != "/v1/admin/models" {
		t.Errorf("method/path = %s %s", rec.Method, rec.Path)
	}
	if rec.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", rec.StatusCode)
	}
	if rec.Username != "alice" || rec.AuthType != "api_key" {
		t.Errorf("principal = %q/%q", rec.Username, rec.AuthType)
	}
	if rec.DurationMS < 0 {
		t.Errorf("duration = %d", rec.DurationMS)
	}
	if got := rec.Metadata["header_authorization"]; got == "Bearer sk-secret" || got == "" {
		t.Errorf("authorization header not redacted: %q", got)
	}
}

func TestAuditMiddlewareRecordsRejectedRequest(t *testing.T) {
	store := storage.NewMemory()
	svc := newAuditService(t, store)

	denied := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	wrapped := AuditMiddleware(svc)(denied)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	records := auditedRecords(t, svc, store)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", records[0].StatusCode)
	}
	if records[0].Username != "" {
		t.Errorf("username = %q, want empty for unauthenticated request", records[0].Username)
	}
}

func TestAuditMiddlewareSkipsExcludedPaths(t *testing.T) {
	store := storage.NewMemory()
	svc := newAuditService(t, store)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := AuditMiddleware(svc)(ok)

	for _, path := range []string{"/v1/health", "/v1/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}

	records := auditedRecords(t, svc, store)
	if len(records) != 0 {
		t.Errorf("records = %d, want 0 for excluded paths", len(records))
	}
}
