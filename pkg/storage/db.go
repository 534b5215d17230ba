package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	// SQL drivers selected at runtime by Config.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB is the SQL implementation of Store. Queries are written with ?
// placeholders and rebound for postgres.
type DB struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

func openSQL(cfg Config) (*DB, error) {
	var (
		driverName string
		dsn        string
		dia        dialect
	)

	switch cfg.Type {
	case "sqlite":
		dia = dialectSQLite
		switch cfg.Driver {
		case "cgo":
			driverName = "sqlite3"
		case "", "modernc":
			driverName = "sqlite"
		default:
			return nil, fmt.Errorf("unknown sqlite driver %q (use modernc or cgo)", cfg.Driver)
		}
		dsn = sqliteDSN(driverName, cfg)
	case "postgres":
		dia = dialectPostgres
		driverName = "pgx"
		dsn = cfg.URL
	default:
		return nil, fmt.Errorf("unknown SQL backend %q", cfg.Type)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	d := &DB{
		db:      db,
		dialect: dia,
		logger:  slog.Default().With("component", "storage", "backend", cfg.Type),
	}

	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.logger.Info("storage initialized", "url", redactDSN(cfg.URL))
	return d, nil
}

// sqliteDSN builds a connection string carrying the pragmas every pooled
// connection needs. The two drivers spell pragma parameters differently.
func sqliteDSN(driverName string, cfg Config) string {
	path := cfg.URL
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}

	if driverName == "sqlite3" {
		params := []string{
			"_busy_timeout=" + strconv.Itoa(busy),
			"_foreign_keys=on",
		}
		if cfg.WALMode {
			params = append(params, "_journal_mode=WAL")
		}
		return "file:" + path + "?" + strings.Join(params, "&")
	}

	params := []string{
		"_pragma=busy_timeout(" + strconv.Itoa(busy) + ")",
		"_pragma=foreign_keys(1)",
	}
	if cfg.WALMode {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// migrate creates the schema and pins the schema version. Running
// against a database from a different schema version fails loudly.
func (d *DB) migrate() error {
	statements := schemaSQLite
	if d.dialect == dialectPostgres {
		statements = schemaPostgres
	}

	tx, err := d.db.Begin()
	if err != nil {
		return wrap("begin migration", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return wrap("apply schema", err)
		}
	}

	var version int64
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(
			d.rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`),
			SchemaVersion, time.Now().UnixMilli(),
		); err != nil {
			return wrap("record schema version", err)
		}
	case err != nil:
		return wrap("read schema version", err)
	case version != SchemaVersion:
		return fmt.Errorf("database schema version %d does not match expected %d", version, SchemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit migration", err)
	}
	return nil
}

// rebind converts ? placeholders to $N for postgres.
func (d *DB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertReturningID runs an INSERT and reports the generated row id,
// papering over the LastInsertId gap in the postgres driver.
func (d *DB) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if d.dialect == dialectPostgres {
		var id int64
		err := d.db.QueryRowContext(ctx, d.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Ping implements Store.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close implements Store.
func (d *DB) Close() error {
	return d.db.Close()
}

func marshalJSONMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSONMap(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalStringMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStringMap(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func milli(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMilli(n int64) time.Time {
	return time.UnixMilli(n).UTC()
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMilli(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

// redactDSN strips credentials from connection strings before logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	clone := *u
	clone.User = url.User(u.User.Username())
	return clone.String()
}
