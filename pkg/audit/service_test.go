package audit_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/storage"
)

// captureForwarder records everything forwarded to it.
type captureForwarder struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (c *captureForwarder) Name() string { return "capture" }

func (c *captureForwarder) Forward(_ context.Context, rec *audit.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, *rec)
	return c.err
}

func (c *captureForwarder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestServiceRecordAndQuery(t *testing.T) {
	store := storage.NewMemory()
	svc := audit.NewService(audit.DefaultConfig(), store, nil, nil)

	svc.Record(&audit.Record{Method: "POST", Path: "/v1/chat/completions", Username: "alice", StatusCode: 200})
	svc.Record(&audit.Record{Method: "GET", Path: "/v1/models", Username: "bob", StatusCode: 200})

	// Close drains the queue, so everything recorded is queryable after.
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records, total, err := svc.Query(context.Background(), audit.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d (total %d)", len(records), total)
	}
	for _, r := range records {
		if r.ID == "" {
			t.Error("Expected a generated record id")
		}
		if r.Timestamp.IsZero() {
			t.Error("Expected a stamped timestamp")
		}
	}

	records, total, err = svc.Query(context.Background(), audit.Query{Username: "alice"})
	if err != nil {
		t.Fatalf("Query by username failed: %v", err)
	}
	if total != 1 || records[0].Username != "alice" {
		t.Errorf("Expected alice's record, got %v (total %d)", records, total)
	}
}

func TestServiceForwardersReceiveRecords(t *testing.T) {
	capture := &captureForwarder{}
	cfg := audit.DefaultConfig()
	cfg.DBEnabled = false
	svc := audit.NewService(cfg, nil, []audit.Forwarder{capture}, nil)

	svc.Record(&audit.Record{Method: "POST", Path: "/v1/chat/completions", StatusCode: 200})
	svc.Record(&audit.Record{Method: "POST", Path: "/v1/completions", StatusCode: 502})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if capture.count() != 2 {
		t.Errorf("Expected forwarder to see 2 records, got %d", capture.count())
	}
}

func TestServiceForwarderErrorsDoNotPropagate(t *testing.T) {
	failing := &captureForwarder{err: errors.New("collector down")}
	store := storage.NewMemory()
	svc := audit.NewService(audit.DefaultConfig(), store, []audit.Forwarder{failing}, nil)

	svc.Record(&audit.Record{Method: "POST", Path: "/v1/chat/completions", StatusCode: 200})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The record still reached the database despite the forwarder failure.
	_, total, err := svc.Query(context.Background(), audit.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected the record to persist, got %d", total)
	}
}

func TestServiceQueryPersistenceDisabled(t *testing.T) {
	cfg := audit.DefaultConfig()
	cfg.DBEnabled = false
	svc := audit.NewService(cfg, nil, nil, nil)
	defer svc.Close()

	if _, _, err := svc.Query(context.Background(), audit.Query{}); !errors.Is(err, audit.ErrPersistenceDisabled) {
		t.Errorf("Expected ErrPersistenceDisabled, got %v", err)
	}
	if _, err := svc.PruneBefore(context.Background(), time.Now()); !errors.Is(err, audit.ErrPersistenceDisabled) {
		t.Errorf("Expected ErrPersistenceDisabled, got %v", err)
	}
}

func TestShouldRecord(t *testing.T) {
	svc := audit.NewService(audit.DefaultConfig(), storage.NewMemory(), nil, nil)
	defer svc.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"/v1/chat/completions", true},
		{"/v1/models", true},
		{"/v1/health", false},
		{"/v1/health/detailed", false},
		{"/metrics", false},
	}
	for _, tt := range tests {
		if got := svc.ShouldRecord(tt.path); got != tt.want {
			t.Errorf("ShouldRecord(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMetadataFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/chat/completions?stream=true", nil)
	req.Header.Set("User-Agent", "portunus-test")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	req.RemoteAddr = "10.1.2.3:49152"

	meta := audit.MetadataFromRequest(req, map[string]bool{"authorization": true})

	if meta["user_agent"] != "portunus-test" {
		t.Errorf("Expected user agent, got %q", meta["user_agent"])
	}
	if meta["query"] != "stream=true" {
		t.Errorf("Expected query string, got %q", meta["query"])
	}
	if meta["remote_addr"] != "10.1.2.3" {
		t.Errorf("Expected remote host without port, got %q", meta["remote_addr"])
	}
	if meta["header_authorization"] != "[REDACTED]" {
		t.Errorf("Expected authorization header to be redacted, got %q", meta["header_authorization"])
	}
	for k, v := range meta {
		if v == "Bearer secret-token" {
			t.Errorf("Raw credential leaked into metadata key %s", k)
		}
	}
}

func TestPruneBefore(t *testing.T) {
	store := storage.NewMemory()
	svc := audit.NewService(audit.DefaultConfig(), store, nil, nil)

	old := time.Now().UTC().AddDate(0, 0, -120)
	svc.Record(&audit.Record{Method: "GET", Path: "/v1/models", StatusCode: 200, Timestamp: old})
	svc.Record(&audit.Record{Method: "GET", Path: "/v1/models", StatusCode: 200})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	deleted, err := svc.PruneBefore(context.Background(), time.Now().UTC().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	_, total, err := svc.Query(context.Background(), audit.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 remaining, got %d", total)
	}
}
