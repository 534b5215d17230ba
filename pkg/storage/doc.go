// Package storage provides the persistence backends behind the catalog,
// identity, usage, and audit services.
//
// Three backends implement the same Store interface: SQLite (pure-Go
// modernc driver by default, cgo mattn driver opt-in), PostgreSQL via
// pgx, and an in-memory store for tests and ephemeral runs. SQL schema
// migration runs on open and is pinned to a schema version; an existing
// database with a different version refuses to open rather than
// guessing.
//
// Queries are written once with ? placeholders and rebound for
// PostgreSQL. Timestamps are stored as integer Unix milliseconds and
// structured fields as JSON text so both dialects share one schema
// shape.
package storage
