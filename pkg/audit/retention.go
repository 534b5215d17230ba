package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes audit records past their retention window on a cron
// schedule.
type Pruner struct {
	service  *Service
	days     int
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
	logger   *slog.Logger
}

// NewPruner creates a retention pruner. days is the retention window;
// schedule is a standard cron expression such as "0 3 * * *".
func NewPruner(service *Service, days int, schedule string, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		service:  service,
		days:     days,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "audit.retention"),
	}
}

// Start schedules pruning. A zero retention window or empty schedule
// disables the pruner.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.days <= 0 || p.schedule == "" {
		p.logger.Info("audit retention disabled")
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", p.schedule, err)
	}

	if _, err := p.cron.AddFunc(p.schedule, func() { p.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule audit pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("audit retention scheduled",
		"schedule", p.schedule,
		"retention_days", p.days,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Prune runs one pruning cycle immediately and returns how many records
// were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.days)
	return p.service.PruneBefore(ctx, cutoff)
}

func (p *Pruner) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	deleted, err := p.Prune(runCtx)
	if err != nil {
		p.logger.Error("scheduled audit pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("audit records pruned", "deleted", deleted)
	} else {
		p.logger.Debug("audit pruning completed, nothing to delete")
	}
}

// Stop halts the schedule and waits for a running job to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil && p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("audit retention stopped")
	}
}

// NextRun returns the next scheduled pruning time, or nil when the
// pruner is disabled.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
