package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the audit service.
type Config struct {
	// DBEnabled persists records to the store. When false the store is
	// never written and queries fail with ErrPersistenceDisabled.
	DBEnabled bool

	// QueueSize is the async queue depth. Records beyond it are dropped.
	// Default: 1000
	QueueSize int

	// WriteTimeout bounds one store write. Default: 5 seconds
	WriteTimeout time.Duration

	// ExcludePaths lists path prefixes that are never recorded.
	ExcludePaths []string

	// SensitiveHeaders lists header names redacted in metadata.
	SensitiveHeaders []string
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		DBEnabled:        true,
		QueueSize:        1000,
		WriteTimeout:     5 * time.Second,
		ExcludePaths:     []string{"/v1/health", "/metrics"},
		SensitiveHeaders: []string{"authorization", "api-key", "x-api-key", "cookie"},
	}
}

// Service records audit entries asynchronously so request handling never
// blocks on audit sinks. A failed or dropped record is logged and counted
// but never fails the audited request.
type Service struct {
	config     Config
	store      Store
	forwarders []Forwarder
	queue      chan *Record
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	sensitive  map[string]bool
	dropped    atomic.Int64
}

// NewService creates an audit service and starts its background worker.
// store may be nil when persistence is disabled.
func NewService(cfg Config, store Store, forwarders []Forwarder, logger *slog.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	sensitive := make(map[string]bool, len(cfg.SensitiveHeaders))
	for _, h := range cfg.SensitiveHeaders {
		sensitive[strings.ToLower(h)] = true
	}

	s := &Service{
		config:     cfg,
		store:      store,
		forwarders: forwarders,
		queue:      make(chan *Record, cfg.QueueSize),
		done:       make(chan struct{}),
		logger:     logger.With("component", "audit"),
		sensitive:  sensitive,
	}

	go s.worker()

	s.logger.Info("audit service initialized",
		"db_enabled", cfg.DBEnabled,
		"queue_size", cfg.QueueSize,
		"forwarders", len(forwarders),
	)
	return s
}

// ShouldRecord reports whether requests to path are audited.
func (s *Service) ShouldRecord(path string) bool {
	for _, prefix := range s.config.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// SensitiveHeaders exposes the redaction set for metadata capture.
func (s *Service) SensitiveHeaders() map[string]bool {
	return s.sensitive
}

// Record enqueues one audit record. It never blocks: when the queue is
// full the record is dropped and counted.
func (s *Service) Record(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	select {
	case s.queue <- rec:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("audit queue full, record dropped",
			"path", rec.Path,
			"dropped_total", n,
		)
	}
}

// worker drains the queue, persisting and forwarding each record.
func (s *Service) worker() {
	defer close(s.done)

	for rec := range s.queue {
		s.process(rec)
	}
	s.logger.Info("audit queue drained")
}

func (s *Service) process(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if s.config.DBEnabled && s.store != nil {
		if err := s.store.InsertAuditRecord(ctx, rec); err != nil {
			s.logger.Error("failed to persist audit record",
				"record_id", rec.ID,
				"error", err,
			)
		}
	}

	for _, fwd := range s.forwarders {
		if err := fwd.Forward(ctx, rec); err != nil {
			s.logger.Error("audit forwarder failed",
				"forwarder", fwd.Name(),
				"record_id", rec.ID,
				"error", err,
			)
		}
	}
}

// Close stops accepting records, drains the queue, and waits for the
// worker to finish, bounded by a drain timeout.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.queue)
		select {
		case <-s.done:
		case <-time.After(10 * time.Second):
			s.logger.Warn("audit drain timed out, records may be lost",
				"pending", len(s.queue),
			)
		}
	})
	return nil
}

// Dropped returns how many records have been dropped due to queue
// pressure since startup.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Query returns matching audit records plus the total match count for
// pagination.
func (s *Service) Query(ctx context.Context, q Query) ([]Record, int64, error) {
	if !s.config.DBEnabled || s.store == nil {
		return nil, 0, ErrPersistenceDisabled
	}
	q.Normalize()

	records, err := s.store.QueryAuditRecords(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountAuditRecords(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// PruneBefore deletes records older than cutoff and returns how many
// were removed.
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if !s.config.DBEnabled || s.store == nil {
		return 0, ErrPersistenceDisabled
	}
	return s.store.DeleteAuditRecordsBefore(ctx, cutoff)
}
