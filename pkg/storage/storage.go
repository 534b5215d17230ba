package storage

import (
	"context"
	"fmt"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
	"fulcrum-hq/portunus/pkg/catalog"
	"fulcrum-hq/portunus/pkg/identity"
	"fulcrum-hq/portunus/pkg/usage"
)

// Config selects and tunes a storage backend.
type Config struct {
	// Type selects the backend: "sqlite", "postgres", or "memory".
	Type string

	// URL is the sqlite file path or postgres DSN.
	URL string

	// Driver selects the sqlite driver: "modernc" (pure Go, default) or
	// "cgo" (mattn/go-sqlite3).
	Driver string

	// MaxOpenConns, MaxIdleConns, and ConnMaxLifetime tune the pool.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is the sqlite busy handler timeout in milliseconds.
	BusyTimeout int

	// WALMode enables sqlite write-ahead logging.
	WALMode bool
}

// Store is the full persistence surface: catalog models and groups,
// users and API keys, the token usage ledger, and audit logs.
type Store interface {
	catalog.Store
	identity.Store
	usage.Store
	audit.Store

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Open creates a Store for the configured backend and runs schema
// migration for SQL backends.
func Open(cfg Config) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "postgres":
		return openSQL(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (use sqlite, postgres, or memory)", cfg.Type)
	}
}
