package storage

// SchemaVersion is the expected schema version. Open fails when the
// database carries a different version, keeping incompatible binaries
// away from newer data.
const SchemaVersion = 1

// Timestamps are stored as unix milliseconds (INTEGER/BIGINT) in both
// dialects so scanning stays uniform. JSON-valued columns (capabilities,
// groups, metadata) are TEXT.

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		model_type     TEXT NOT NULL DEFAULT 'llm',
		url            TEXT NOT NULL,
		display_name   TEXT NOT NULL,
		technical_name TEXT NOT NULL UNIQUE,
		provider       TEXT NOT NULL,
		status         TEXT NOT NULL,
		api_version    TEXT NOT NULL DEFAULT '',
		capabilities   TEXT NOT NULL DEFAULT '{}',
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_models_status ON models(status)`,
	`CREATE TABLE IF NOT EXISTS "groups" (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_authorization (
		model_id   INTEGER NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		group_id   INTEGER NOT NULL REFERENCES "groups"(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (model_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL DEFAULT '',
		groups     TEXT NOT NULL DEFAULT '[]',
		is_active  INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		key_hash     TEXT NOT NULL UNIQUE,
		is_active    INTEGER NOT NULL DEFAULT 1,
		expires_at   INTEGER,
		last_used_at INTEGER,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
	`CREATE TABLE IF NOT EXISTS token_usages (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		username          TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		total_tokens      INTEGER NOT NULL,
		endpoint          TEXT NOT NULL DEFAULT '',
		request_id        TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_token_usages_user_time ON token_usages(username, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          TEXT PRIMARY KEY,
		timestamp   INTEGER NOT NULL,
		method      TEXT NOT NULL,
		path        TEXT NOT NULL,
		username    TEXT NOT NULL DEFAULT '',
		auth_type   TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		request_id  TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_username ON audit_logs(username)`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version    BIGINT PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		model_type     TEXT NOT NULL DEFAULT 'llm',
		url            TEXT NOT NULL,
		display_name   TEXT NOT NULL,
		technical_name TEXT NOT NULL UNIQUE,
		provider       TEXT NOT NULL,
		status         TEXT NOT NULL,
		api_version    TEXT NOT NULL DEFAULT '',
		capabilities   TEXT NOT NULL DEFAULT '{}',
		created_at     BIGINT NOT NULL,
		updated_at     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_models_status ON models(status)`,
	`CREATE TABLE IF NOT EXISTS "groups" (
		id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_authorization (
		model_id   BIGINT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		group_id   BIGINT NOT NULL REFERENCES "groups"(id) ON DELETE CASCADE,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (model_id, group_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL DEFAULT '',
		groups     TEXT NOT NULL DEFAULT '[]',
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		key_hash     TEXT NOT NULL UNIQUE,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at   BIGINT,
		last_used_at BIGINT,
		created_at   BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
	`CREATE TABLE IF NOT EXISTS token_usages (
		id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		username          TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     BIGINT NOT NULL,
		completion_tokens BIGINT NOT NULL,
		total_tokens      BIGINT NOT NULL,
		endpoint          TEXT NOT NULL DEFAULT '',
		request_id        TEXT NOT NULL DEFAULT '',
		created_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_token_usages_user_time ON token_usages(username, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          TEXT PRIMARY KEY,
		timestamp   BIGINT NOT NULL,
		method      TEXT NOT NULL,
		path        TEXT NOT NULL,
		username    TEXT NOT NULL DEFAULT '',
		auth_type   TEXT NOT NULL DEFAULT '',
		status_code BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		request_id  TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_username ON audit_logs(username)`,
}
