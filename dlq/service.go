package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Service provides operator-facing DLQ operations over a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a DLQ service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replay moves an entry back to the live queue, eligible immediately and
// with a fresh retry budget.
func (s *Service) Replay(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	r, err := s.store.RequeueDLQ(ctx, jobID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("dlq entry replayed",
		slog.String("job_id", jobID.String()),
		slog.String("job_type", r.Type),
		slog.String("queue", r.Queue),
	)
	return r, nil
}

// Purge removes entries that failed more than olderThan ago.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.PurgeDLQ(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dlq purged", slog.Int64("removed", n), slog.Duration("older_than", olderThan))
	}
	return n, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*Entry, error) {
	return s.store.GetDLQ(ctx, jobID)
}

// List returns entries matching opts.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, opts)
}

// Count returns the number of entries in queue ("" for all).
func (s *Service) Count(ctx context.Context, queue string) (int64, error) {
	return s.store.CountDLQ(ctx, queue)
}
