package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWindowDays is the summary window used when a caller does not
// name one.
const DefaultWindowDays = 30

// DefaultDetailLimit bounds detail listings without an explicit limit.
const DefaultDetailLimit = 100

// Store is the persistence contract the ledger depends on.
type Store interface {
	InsertUsage(ctx context.Context, r *Record) error
	SumUsageByModel(ctx context.Context, username string, since time.Time) ([]ModelTotals, error)
	ListUsage(ctx context.Context, username string, since time.Time, limit int) ([]Record, error)
}

// Ledger appends and summarizes token usage. Appends stamp each record
// with a strictly increasing timestamp so rows written within the same
// clock tick keep a stable order.
type Ledger struct {
	store  Store
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewLedger creates a usage ledger backed by store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		logger: logger.With("component", "usage"),
	}
}

// stamp returns a timestamp strictly after every previously issued one.
func (l *Ledger) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(l.last) {
		now = l.last.Add(time.Millisecond)
	}
	l.last = now
	return now
}

// Append writes one usage record. A zero TotalTokens is filled from the
// parts; a non-zero total that disagrees with the parts is rejected.
func (l *Ledger) Append(ctx context.Context, r *Record) error {
	if r.TotalTokens == 0 {
		r.TotalTokens = r.PromptTokens + r.CompletionTokens
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.stamp()
	}

	if err := l.store.InsertUsage(ctx, r); err != nil {
		return err
	}

	l.logger.Debug("usage recorded",
		"username", r.Username,
		"model", r.Model,
		"total_tokens", r.TotalTokens,
	)
	return nil
}

// Summary rolls up a user's usage over the trailing window of days.
// A non-positive days falls back to DefaultWindowDays.
func (l *Ledger) Summary(ctx context.Context, username string, days int) (*Summary, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	perModel, err := l.store.SumUsageByModel(ctx, username, since)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Username: username,
		Days:     days,
		Models:   perModel,
	}
	for _, m := range perModel {
		summary.PromptTokens += m.PromptTokens
		summary.CompletionTokens += m.CompletionTokens
		summary.TotalTokens += m.TotalTokens
		summary.Requests += m.Requests
	}
	return summary, nil
}

// Details lists a user's individual usage rows over the trailing window,
// newest first, bounded by limit.
func (l *Ledger) Details(ctx context.Context, username string, days, limit int) ([]Record, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return l.store.ListUsage(ctx, username, since, limit)
}
