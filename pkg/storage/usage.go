package storage

import (
	"context"
	"time"

	"fulcrum-hq/portunus/pkg/usage"
)

// InsertUsage implements usage.Store.
func (d *DB) InsertUsage(ctx context.Context, r *usage.Record) error {
	id, err := d.insertReturningID(ctx,
		`INSERT INTO token_usages (username, model, prompt_tokens, completion_tokens, total_tokens, endpoint, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Username, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens,
		r.Endpoint, r.RequestID, milli(r.CreatedAt),
	)
	if err != nil {
		return wrap("insert usage", err)
	}
	r.ID = id
	return nil
}

// SumUsageByModel implements usage.Store.
func (d *DB) SumUsageByModel(ctx context.Context, username string, since time.Time) ([]usage.ModelTotals, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(
		`SELECT model,
		        COALESCE(SUM(prompt_tokens), 0),
		        COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(total_tokens), 0),
		        COUNT(*)
		 FROM token_usages
		 WHERE username = ? AND created_at >= ?
		 GROUP BY model
		 ORDER BY model`),
		username, milli(since),
	)
	if err != nil {
		return nil, wrap("sum usage", err)
	}
	defer rows.Close()

	totals := []usage.ModelTotals{}
	for rows.Next() {
		var t usage.ModelTotals
		if err := rows.Scan(&t.Model, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens, &t.Requests); err != nil {
			return nil, wrap("scan usage totals", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate usage totals", err)
	}
	return totals, nil
}

// ListUsage implements usage.Store, newest rows first.
func (d *DB) ListUsage(ctx context.Context, username string, since time.Time, limit int) ([]usage.Record, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(
		`SELECT id, username, model, prompt_tokens, completion_tokens, total_tokens, endpoint, request_id, created_at
		 FROM token_usages
		 WHERE username = ? AND created_at >= ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`),
		username, milli(since), limit,
	)
	if err != nil {
		return nil, wrap("list usage", err)
	}
	defer rows.Close()

	records := []usage.Record{}
	for rows.Next() {
		var (
			r       usage.Record
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Username, &r.Model, &r.PromptTokens, &r.CompletionTokens,
			&r.TotalTokens, &r.Endpoint, &r.RequestID, &created); err != nil {
			return nil, wrap("scan usage record", err)
		}
		r.CreatedAt = fromMilli(created)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate usage records", err)
	}
	return records, nil
}
