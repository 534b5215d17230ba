package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Record is one audit log entry describing a handled HTTP request.
// Records are append-only; nothing in the system updates them after the
// fact.
type Record struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Username   string            `json:"username,omitempty"`
	AuthType   string            `json:"auth_type,omitempty"`
	StatusCode int               `json:"status_code"`
	DurationMS int64             `json:"duration_ms"`
	RequestID  string            `json:"request_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Query filters audit records. Zero-valued fields are ignored.
type Query struct {
	// Username filters by exact username.
	Username string

	// PathPrefix filters by request path prefix.
	PathPrefix string

	// StatusCode filters by exact response status.
	StatusCode int

	// Since and Until bound the timestamp range. Zero values mean
	// unbounded.
	Since time.Time
	Until time.Time

	// Limit and Offset page through results, newest first.
	Limit  int
	Offset int
}

// Query paging bounds.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Normalize clamps paging to sane bounds.
func (q *Query) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Store is the persistence contract for audit records.
type Store interface {
	InsertAuditRecord(ctx context.Context, r *Record) error
	QueryAuditRecords(ctx context.Context, q Query) ([]Record, error)
	CountAuditRecords(ctx context.Context, q Query) (int64, error)
	DeleteAuditRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrPersistenceDisabled is returned by query operations when the
// database sink is turned off.
var ErrPersistenceDisabled = errors.New("audit persistence is disabled")

// redactedValue replaces sensitive header values in audit metadata.
const redactedValue = "[REDACTED]"

// MetadataFromRequest captures request attributes worth keeping alongside
// the core audit fields. Headers named in sensitive are recorded with
// their values replaced.
func MetadataFromRequest(r *http.Request, sensitive map[string]bool) map[string]string {
	meta := make(map[string]string, 4)

	if ua := r.UserAgent(); ua != "" {
		meta["user_agent"] = ua
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		meta["content_type"] = ct
	}
	if r.URL.RawQuery != "" {
		meta["query"] = r.URL.RawQuery
	}
	if host := remoteHost(r); host != "" {
		meta["remote_addr"] = host
	}

	for name := range sensitive {
		if r.Header.Get(name) != "" {
			meta["header_"+strings.ToLower(name)] = redactedValue
		}
	}

	return meta
}

func remoteHost(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
