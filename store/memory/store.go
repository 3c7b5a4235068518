// Package memory is an in-process implementation of store.Store. A single
// mutex makes every operation atomic, including the moves between the live
// queue and the dead-letter store. Intended for tests and single-process
// deployments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/store"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu     sync.Mutex
	jobs   map[string]*job.Record
	dead   map[string]*dlq.Entry
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Record),
		dead: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkOpen()
}

// Close makes every later operation fail with ErrStoreUnavailable.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Store) checkOpen() error {
	if m.closed {
		return fmt.Errorf("%w: %w", jobstore.ErrStoreUnavailable, jobstore.ErrStoreClosed)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// InsertJob persists a new waiting record.
func (m *Store) InsertJob(_ context.Context, r *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return jobstore.ErrJobAlreadyExists
	}
	if _, exists := m.dead[key]; exists {
		return jobstore.ErrJobAlreadyExists
	}
	m.jobs[key] = r.Clone()
	return nil
}

// ClaimJob leases the best eligible record.
func (m *Store) ClaimJob(_ context.Context, p job.ClaimParams) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var best *job.Record
	for _, r := range m.jobs {
		if !r.Eligible(p.Queue, p.Types, p.Now) {
			continue
		}
		if best == nil || r.Before(best) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}

	now := p.Now
	best.LeasedAt = &now
	best.RetryCount++
	return best.Clone(), nil
}

// leased returns the record held under (jobID, leasedAt), or ErrLeaseLost.
func (m *Store) leased(jobID id.JobID, leasedAt time.Time) (*job.Record, error) {
	r, ok := m.jobs[jobID.String()]
	if !ok || r.LeasedAt == nil || !r.LeasedAt.Equal(leasedAt) {
		return nil, jobstore.ErrLeaseLost
	}
	return r, nil
}

// CompleteJob deletes a leased record.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, leasedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	if _, err := m.leased(jobID, leasedAt); err != nil {
		return err
	}
	delete(m.jobs, jobID.String())
	return nil
}

// ReleaseJob returns a leased record to the waiting state.
func (m *Store) ReleaseJob(_ context.Context, jobID id.JobID, leasedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	r, err := m.leased(jobID, leasedAt)
	if err != nil {
		return err
	}
	r.LeasedAt = nil
	return nil
}

// CancelJob deletes a waiting record.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	r, ok := m.jobs[jobID.String()]
	if !ok || r.Leased() {
		return jobstore.ErrJobNotFound
	}
	delete(m.jobs, jobID.String())
	return nil
}

// UnscheduleJob deletes a waiting record of the given type and returns it.
func (m *Store) UnscheduleJob(_ context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	r, ok := m.jobs[jobID.String()]
	if !ok || r.Leased() || r.Type != jobType {
		return nil, jobstore.ErrJobNotFound
	}
	delete(m.jobs, jobID.String())
	return r, nil
}

// GetJob retrieves a record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, jobstore.ErrJobNotFound
	}
	return r.Clone(), nil
}

func matchJob(r *job.Record, queue string, state job.State) bool {
	return (queue == "" || r.Queue == queue) && (state == "" || r.State() == state)
}

// ListJobs returns records ordered by enqueue time, then ID.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var out []*job.Record
	for _, r := range m.jobs {
		if matchJob(r, opts.Queue, opts.State) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *job.Record) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return page(out, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of records matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	for _, r := range m.jobs {
		if matchJob(r, opts.Queue, opts.State) {
			n++
		}
	}
	return n, nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (m *Store) ReleaseExpiredLeases(_ context.Context, queue string, leasedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	for _, r := range m.jobs {
		if r.Queue == queue && r.Leased() && r.LeasedAt.Before(leasedBefore) {
			r.LeasedAt = nil
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// DeadLetterJob moves a leased record into the dead-letter store.
func (m *Store) DeadLetterJob(_ context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	r, err := m.leased(jobID, leasedAt)
	if err != nil {
		return err
	}
	key := jobID.String()
	if _, exists := m.dead[key]; exists {
		return fmt.Errorf("jobstore/memory: dead letter: %w: %w", jobstore.ErrTransactionFailed, jobstore.ErrJobAlreadyExists)
	}

	m.dead[key] = dlq.NewEntry(r, reason, failedAt)
	delete(m.jobs, key)
	return nil
}

// RequeueDLQ moves an entry back to the live queue as a waiting record.
func (m *Store) RequeueDLQ(_ context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	key := jobID.String()
	e, ok := m.dead[key]
	if !ok {
		return nil, jobstore.ErrDLQNotFound
	}
	if _, exists := m.jobs[key]; exists {
		return nil, fmt.Errorf("jobstore/memory: requeue: %w: %w", jobstore.ErrTransactionFailed, jobstore.ErrJobAlreadyExists)
	}

	r := e.Requeued(scheduledAt)
	m.jobs[key] = r
	delete(m.dead, key)
	return r.Clone(), nil
}

// GetDLQ retrieves an entry by job ID.
func (m *Store) GetDLQ(_ context.Context, jobID id.JobID) (*dlq.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	e, ok := m.dead[jobID.String()]
	if !ok {
		return nil, jobstore.ErrDLQNotFound
	}
	return e.Clone(), nil
}

// ListDLQ returns entries, most recently failed first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var out []*dlq.Entry
	for _, e := range m.dead {
		if opts.Queue == "" || e.Queue == opts.Queue {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *dlq.Entry) int {
		if c := b.FailedAt.Compare(a.FailedAt); c != 0 {
			return c
		}
		return compareIDs(b.ID, a.ID)
	})
	return page(out, opts.Offset, opts.Limit), nil
}

// CountDLQ returns the number of entries in queue ("" for all).
func (m *Store) CountDLQ(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	for _, e := range m.dead {
		if queue == "" || e.Queue == queue {
			n++
		}
	}
	return n, nil
}

// PurgeDLQ removes entries that failed before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	for key, e := range m.dead {
		if e.FailedAt.Before(before) {
			delete(m.dead, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func compareIDs(a, b id.JobID) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
