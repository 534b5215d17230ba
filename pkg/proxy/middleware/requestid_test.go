package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	var seenInContext string
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	echoed := w.Header().Get(RequestIDHeader)
	if echoed == "" {
		t.Fatal("response missing X-Request-ID")
	}
	if _, err := uuid.Parse(echoed); err != nil {
		t.Errorf("generated ID %q is not a UUID: %v", echoed, err)
	}
	if seenInContext != echoed {
		t.Errorf("context ID %q != response header %q", seenInContext, echoed)
	}
}

func TestRequestIDHonorsClientValue(t *testing.T) {
	var seenInContext string
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set(RequestIDHeader, "client-chosen-id")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "client-chosen-id" {
		t.Errorf("echoed ID = %q, want the client's", got)
	}
	if seenInContext != "client-chosen-id" {
		t.Errorf("context ID = %q, want the client's", seenInContext)
	}
}

func TestRequestIDsDistinctAcrossRequests(t *testing.T) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
		ids[w.Header().Get(RequestIDHeader)] = true
	}
	if len(ids) != 3 {
		t.Errorf("got %d distinct IDs across 3 requests", len(ids))
	}
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID = %q, want empty without middleware", got)
	}
}
