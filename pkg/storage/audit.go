package storage

import (
	"context"
	"strings"
	"time"

	"fulcrum-hq/portunus/pkg/audit"
)

// InsertAuditRecord implements audit.Store.
func (d *DB) InsertAuditRecord(ctx context.Context, r *audit.Record) error {
	metadata, err := marshalStringMap(r.Metadata)
	if err != nil {
		return wrap("marshal audit metadata", err)
	}
	_, err = d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO audit_logs (id, timestamp, method, path, username, auth_type, status_code, duration_ms, request_id, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, milli(r.Timestamp), r.Method, r.Path, r.Username, r.AuthType,
		r.StatusCode, r.DurationMS, r.RequestID, metadata,
	)
	if err != nil {
		return wrap("insert audit record", err)
	}
	return nil
}

// auditFilter builds the WHERE clause shared by query and count.
func auditFilter(q audit.Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Username != "" {
		clauses = append(clauses, "username = ?")
		args = append(args, q.Username)
	}
	if q.PathPrefix != "" {
		clauses = append(clauses, "path LIKE ?")
		args = append(args, q.PathPrefix+"%")
	}
	if q.StatusCode != 0 {
		clauses = append(clauses, "status_code = ?")
		args = append(args, q.StatusCode)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, milli(q.Since))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, milli(q.Until))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryAuditRecords implements audit.Store, newest entries first.
func (d *DB) QueryAuditRecords(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	q.Normalize()
	where, args := auditFilter(q)
	query := `SELECT id, timestamp, method, path, username, auth_type, status_code, duration_ms, request_id, metadata
	          FROM audit_logs` + where + ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, wrap("query audit records", err)
	}
	defer rows.Close()

	records := []audit.Record{}
	for rows.Next() {
		var (
			r        audit.Record
			ts       int64
			metadata string
		)
		if err := rows.Scan(&r.ID, &ts, &r.Method, &r.Path, &r.Username, &r.AuthType,
			&r.StatusCode, &r.DurationMS, &r.RequestID, &metadata); err != nil {
			return nil, wrap("scan audit record", err)
		}
		r.Timestamp = fromMilli(ts)
		if r.Metadata, err = unmarshalStringMap(metadata); err != nil {
			return nil, wrap("unmarshal audit metadata", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate audit records", err)
	}
	return records, nil
}

// CountAuditRecords implements audit.Store.
func (d *DB) CountAuditRecords(ctx context.Context, q audit.Query) (int64, error) {
	where, args := auditFilter(q)
	var count int64
	err := d.db.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM audit_logs`+where), args...).Scan(&count)
	if err != nil {
		return 0, wrap("count audit records", err)
	}
	return count, nil
}

// DeleteAuditRecordsBefore implements audit.Store and reports how many rows
// were removed.
func (d *DB) DeleteAuditRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM audit_logs WHERE timestamp < ?`), milli(cutoff))
	if err != nil {
		return 0, wrap("delete audit records", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete audit records", err)
	}
	return deleted, nil
}
