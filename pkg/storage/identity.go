package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fulcrum-hq/portunus/pkg/identity"
)

func scanUser(row rowScanner) (*identity.User, error) {
	var (
		u                identity.User
		groups           string
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &groups, &u.IsActive, &created, &updated)
	if err != nil {
		return nil, err
	}
	if u.Groups, err = unmarshalStrings(groups); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMilli(created)
	u.UpdatedAt = fromMilli(updated)
	return &u, nil
}

// InsertUser implements identity.Store.
func (d *DB) InsertUser(ctx context.Context, u *identity.User) error {
	groups, err := marshalStrings(u.Groups)
	if err != nil {
		return wrap("encode user groups", err)
	}

	_, err = d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO users (id, username, email, groups, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, groups, u.IsActive,
		milli(u.CreatedAt), milli(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.NewAlreadyExists("user", u.Username)
		}
		return wrap("insert user", err)
	}
	return nil
}

// UpdateUser implements identity.Store.
func (d *DB) UpdateUser(ctx context.Context, u *identity.User) error {
	groups, err := marshalStrings(u.Groups)
	if err != nil {
		return wrap("encode user groups", err)
	}

	res, err := d.db.ExecContext(ctx, d.rebind(
		`UPDATE users SET username = ?, email = ?, groups = ?, is_active = ?, updated_at = ? WHERE id = ?`),
		u.Username, u.Email, groups, u.IsActive, milli(u.UpdatedAt), u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.NewAlreadyExists("user", u.Username)
		}
		return wrap("update user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.NewNotFound("user", u.ID)
	}
	return nil
}

// DeleteUser implements identity.Store. The user's API keys go with the
// account; token usage rows are retained.
func (d *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin delete user", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM api_keys WHERE user_id = ?`), id); err != nil {
		return wrap("delete user api keys", err)
	}

	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return wrap("delete user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.NewNotFound("user", id)
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit delete user", err)
	}
	return nil
}

// GetUser implements identity.Store.
func (d *DB) GetUser(ctx context.Context, id string) (*identity.User, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, username, email, groups, is_active, created_at, updated_at FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.NewNotFound("user", id)
	}
	if err != nil {
		return nil, wrap("get user", err)
	}
	return u, nil
}

// GetUserByUsername implements identity.Store.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*identity.User, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, username, email, groups, is_active, created_at, updated_at FROM users WHERE username = ?`), username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.NewNotFound("user", username)
	}
	if err != nil {
		return nil, wrap("get user by username", err)
	}
	return u, nil
}

// ListUsers implements identity.Store.
func (d *DB) ListUsers(ctx context.Context) ([]identity.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, username, email, groups, is_active, created_at, updated_at FROM users ORDER BY username`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	users := []identity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate users", err)
	}
	return users, nil
}

func scanAPIKey(row rowScanner) (*identity.APIKey, error) {
	var (
		k                 identity.APIKey
		expires, lastUsed sql.NullInt64
		created           int64
	)
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.IsActive, &expires, &lastUsed, &created)
	if err != nil {
		return nil, err
	}
	k.ExpiresAt = fromNullMilli(expires)
	k.LastUsedAt = fromNullMilli(lastUsed)
	k.CreatedAt = fromMilli(created)
	return &k, nil
}

// InsertAPIKey implements identity.Store.
func (d *DB) InsertAPIKey(ctx context.Context, k *identity.APIKey) error {
	id, err := d.insertReturningID(ctx,
		`INSERT INTO api_keys (user_id, name, key_hash, is_active, expires_at, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.UserID, k.Name, k.KeyHash, k.IsActive,
		nullMilli(k.ExpiresAt), nullMilli(k.LastUsedAt), milli(k.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.NewAlreadyExists("api key", k.Name)
		}
		return wrap("insert api key", err)
	}
	k.ID = id
	return nil
}

// DeleteAPIKey implements identity.Store.
func (d *DB) DeleteAPIKey(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return wrap("delete api key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.NewNotFound("api key", id)
	}
	return nil
}

// GetAPIKey implements identity.Store.
func (d *DB) GetAPIKey(ctx context.Context, id int64) (*identity.APIKey, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, user_id, name, key_hash, is_active, expires_at, last_used_at, created_at
		 FROM api_keys WHERE id = ?`), id)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.NewNotFound("api key", id)
	}
	if err != nil {
		return nil, wrap("get api key", err)
	}
	return k, nil
}

// GetAPIKeyByHash implements identity.Store.
func (d *DB) GetAPIKeyByHash(ctx context.Context, hash string) (*identity.APIKey, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, user_id, name, key_hash, is_active, expires_at, last_used_at, created_at
		 FROM api_keys WHERE key_hash = ?`), hash)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.NewNotFound("api key", "by hash")
	}
	if err != nil {
		return nil, wrap("get api key by hash", err)
	}
	return k, nil
}

// ListAPIKeysForUser implements identity.Store.
func (d *DB) ListAPIKeysForUser(ctx context.Context, userID string) ([]identity.APIKey, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(
		`SELECT id, user_id, name, key_hash, is_active, expires_at, last_used_at, created_at
		 FROM api_keys WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, wrap("list api keys", err)
	}
	defer rows.Close()

	keys := []identity.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, wrap("scan api key", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate api keys", err)
	}
	return keys, nil
}

// TouchAPIKey implements identity.Store.
func (d *DB) TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`),
		milli(usedAt), id,
	)
	if err != nil {
		return wrap("touch api key", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.NewNotFound("api key", id)
	}
	return nil
}
