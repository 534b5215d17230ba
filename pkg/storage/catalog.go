package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulcrum-hq/portunus/pkg/catalog"
)

const modelColumns = `id, model_type, url, display_name, technical_name, provider, status, api_version, capabilities, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*catalog.Model, error) {
	var (
		m                catalog.Model
		provider, status string
		caps             string
		created, updated int64
	)
	err := row.Scan(
		&m.ID, &m.ModelType, &m.URL, &m.DisplayName, &m.TechnicalName,
		&provider, &status, &m.APIVersion, &caps, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	m.Provider = catalog.Provider(provider)
	m.Status = catalog.Status(status)
	m.CreatedAt = fromMilli(created)
	m.UpdatedAt = fromMilli(updated)
	if m.Capabilities, err = unmarshalJSONMap(caps); err != nil {
		return nil, fmt.Errorf("corrupt capabilities for model %d: %w", m.ID, err)
	}
	return &m, nil
}

func (d *DB) queryModels(ctx context.Context, query string, args ...any) ([]catalog.Model, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, wrap("query models", err)
	}
	defer rows.Close()

	models := []catalog.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, wrap("scan model", err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate models", err)
	}
	return models, nil
}

// InsertModel implements catalog.Store.
func (d *DB) InsertModel(ctx context.Context, m *catalog.Model) error {
	caps, err := marshalJSONMap(m.Capabilities)
	if err != nil {
		return wrap("encode capabilities", err)
	}

	id, err := d.insertReturningID(ctx,
		`INSERT INTO models (model_type, url, display_name, technical_name, provider, status, api_version, capabilities, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ModelType, m.URL, m.DisplayName, m.TechnicalName,
		string(m.Provider), string(m.Status), m.APIVersion, caps,
		milli(m.CreatedAt), milli(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists("model", m.TechnicalName)
		}
		return wrap("insert model", err)
	}
	m.ID = id
	return nil
}

// UpdateModel implements catalog.Store.
func (d *DB) UpdateModel(ctx context.Context, m *catalog.Model) error {
	caps, err := marshalJSONMap(m.Capabilities)
	if err != nil {
		return wrap("encode capabilities", err)
	}

	res, err := d.db.ExecContext(ctx, d.rebind(
		`UPDATE models
		 SET model_type = ?, url = ?, display_name = ?, technical_name = ?, provider = ?, status = ?, api_version = ?, capabilities = ?, updated_at = ?
		 WHERE id = ?`),
		m.ModelType, m.URL, m.DisplayName, m.TechnicalName,
		string(m.Provider), string(m.Status), m.APIVersion, caps,
		milli(m.UpdatedAt), m.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists("model", m.TechnicalName)
		}
		return wrap("update model", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("model", m.ID)
	}
	return nil
}

// UpdateModelStatus implements catalog.Store.
func (d *DB) UpdateModelStatus(ctx context.Context, id int64, status catalog.Status, updatedAt time.Time) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`UPDATE models SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), milli(updatedAt), id,
	)
	if err != nil {
		return wrap("update model status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("model", id)
	}
	return nil
}

// DeleteModel implements catalog.Store.
func (d *DB) DeleteModel(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin delete model", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		d.rebind(`DELETE FROM model_authorization WHERE model_id = ?`), id,
	); err != nil {
		return wrap("delete model authorizations", err)
	}

	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM models WHERE id = ?`), id)
	if err != nil {
		return wrap("delete model", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("model", id)
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit delete model", err)
	}
	return nil
}

// GetModel implements catalog.Store.
func (d *DB) GetModel(ctx context.Context, id int64) (*catalog.Model, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+modelColumns+` FROM models WHERE id = ?`), id)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound("model", id)
	}
	if err != nil {
		return nil, wrap("get model", err)
	}
	return m, nil
}

// GetModelByTechnicalName implements catalog.Store.
func (d *DB) GetModelByTechnicalName(ctx context.Context, name string) (*catalog.Model, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+modelColumns+` FROM models WHERE technical_name = ?`), name)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound("model", name)
	}
	if err != nil {
		return nil, wrap("get model by technical name", err)
	}
	return m, nil
}

// GetModelByDisplayName implements catalog.Store. Display names are not
// unique; the oldest match wins.
func (d *DB) GetModelByDisplayName(ctx context.Context, name string) (*catalog.Model, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+modelColumns+` FROM models WHERE display_name = ? ORDER BY id LIMIT 1`), name)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound("model", name)
	}
	if err != nil {
		return nil, wrap("get model by display name", err)
	}
	return m, nil
}

// ListModels implements catalog.Store.
func (d *DB) ListModels(ctx context.Context) ([]catalog.Model, error) {
	return d.queryModels(ctx, `SELECT `+modelColumns+` FROM models ORDER BY id`)
}

// ListApprovedModels implements catalog.Store.
func (d *DB) ListApprovedModels(ctx context.Context) ([]catalog.Model, error) {
	return d.queryModels(ctx,
		`SELECT `+modelColumns+` FROM models WHERE status = ? ORDER BY id`,
		string(catalog.StatusApproved))
}

// ListApprovedModelsForGroups implements catalog.Store. The result is the
// deduplicated union of approved models linked to any named group.
func (d *DB) ListApprovedModelsForGroups(ctx context.Context, groupNames []string) ([]catalog.Model, error) {
	if len(groupNames) == 0 {
		return []catalog.Model{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(groupNames)), ", ")
	query := fmt.Sprintf(
		`SELECT DISTINCT m.id, m.model_type, m.url, m.display_name, m.technical_name, m.provider, m.status, m.api_version, m.capabilities, m.created_at, m.updated_at
		 FROM models m
		 JOIN model_authorization ma ON ma.model_id = m.id
		 JOIN "groups" g ON g.id = ma.group_id
		 WHERE g.name IN (%s) AND m.status = ?
		 ORDER BY m.id`, placeholders)

	args := make([]any, 0, len(groupNames)+1)
	for _, name := range groupNames {
		args = append(args, name)
	}
	args = append(args, string(catalog.StatusApproved))

	return d.queryModels(ctx, query, args...)
}

func scanGroup(row rowScanner) (*catalog.Group, error) {
	var (
		g                catalog.Group
		created, updated int64
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &created, &updated); err != nil {
		return nil, err
	}
	g.CreatedAt = fromMilli(created)
	g.UpdatedAt = fromMilli(updated)
	return &g, nil
}

// InsertGroup implements catalog.Store.
func (d *DB) InsertGroup(ctx context.Context, g *catalog.Group) error {
	id, err := d.insertReturningID(ctx,
		`INSERT INTO "groups" (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		g.Name, g.Description, milli(g.CreatedAt), milli(g.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists("group", g.Name)
		}
		return wrap("insert group", err)
	}
	g.ID = id
	return nil
}

// UpdateGroup implements catalog.Store.
func (d *DB) UpdateGroup(ctx context.Context, g *catalog.Group) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`UPDATE "groups" SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
		g.Name, g.Description, milli(g.UpdatedAt), g.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists("group", g.Name)
		}
		return wrap("update group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("group", g.ID)
	}
	return nil
}

// DeleteGroup implements catalog.Store.
func (d *DB) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin delete group", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		d.rebind(`DELETE FROM model_authorization WHERE group_id = ?`), id,
	); err != nil {
		return wrap("delete group authorizations", err)
	}

	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM "groups" WHERE id = ?`), id)
	if err != nil {
		return wrap("delete group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("group", id)
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit delete group", err)
	}
	return nil
}

// GetGroup implements catalog.Store.
func (d *DB) GetGroup(ctx context.Context, id int64) (*catalog.Group, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT id, name, description, created_at, updated_at FROM "groups" WHERE id = ?`), id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound("group", id)
	}
	if err != nil {
		return nil, wrap("get group", err)
	}
	return g, nil
}

// GetGroupByName implements catalog.Store.
func (d *DB) GetGroupByName(ctx context.Context, name string) (*catalog.Group, error) {
	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT id, name, description, created_at, updated_at FROM "groups" WHERE name = ?`), name)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound("group", name)
	}
	if err != nil {
		return nil, wrap("get group by name", err)
	}
	return g, nil
}

// ListGroups implements catalog.Store.
func (d *DB) ListGroups(ctx context.Context) ([]catalog.Group, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM "groups" ORDER BY id`)
	if err != nil {
		return nil, wrap("list groups", err)
	}
	defer rows.Close()

	groups := []catalog.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, wrap("scan group", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate groups", err)
	}
	return groups, nil
}

// AddModelToGroup implements catalog.Store. Existing edges are left
// untouched, making the operation idempotent.
func (d *DB) AddModelToGroup(ctx context.Context, modelID, groupID int64, createdAt time.Time) error {
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO model_authorization (model_id, group_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (model_id, group_id) DO NOTHING`),
		modelID, groupID, milli(createdAt),
	)
	if err != nil {
		return wrap("add model to group", err)
	}
	return nil
}

// RemoveModelFromGroup implements catalog.Store.
func (d *DB) RemoveModelFromGroup(ctx context.Context, modelID, groupID int64) error {
	res, err := d.db.ExecContext(ctx,
		d.rebind(`DELETE FROM model_authorization WHERE model_id = ? AND group_id = ?`),
		modelID, groupID,
	)
	if err != nil {
		return wrap("remove model from group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.NewNotFound("model authorization",
			fmt.Sprintf("model %d in group %d", modelID, groupID))
	}
	return nil
}

// GroupsForModel implements catalog.Store.
func (d *DB) GroupsForModel(ctx context.Context, modelID int64) ([]catalog.Group, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(
		`SELECT g.id, g.name, g.description, g.created_at, g.updated_at
		 FROM "groups" g
		 JOIN model_authorization ma ON ma.group_id = g.id
		 WHERE ma.model_id = ?
		 ORDER BY g.id`), modelID)
	if err != nil {
		return nil, wrap("groups for model", err)
	}
	defer rows.Close()

	groups := []catalog.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, wrap("scan group", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate groups", err)
	}
	return groups, nil
}

// ModelsForGroup implements catalog.Store.
func (d *DB) ModelsForGroup(ctx context.Context, groupID int64) ([]catalog.Model, error) {
	return d.queryModels(ctx,
		`SELECT m.id, m.model_type, m.url, m.display_name, m.technical_name, m.provider, m.status, m.api_version, m.capabilities, m.created_at, m.updated_at
		 FROM models m
		 JOIN model_authorization ma ON ma.model_id = m.id
		 WHERE ma.group_id = ?
		 ORDER BY m.id`, groupID)
}
