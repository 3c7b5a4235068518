package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/store"
	"github.com/xraph/jobstore/store/storetest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t,
		func(t *testing.T) store.Store { return setupTestStore(t) },
		storetest.WithDeadLetterSeeder(func(ctx context.Context, st store.Store, e *dlq.Entry) error {
			_, err := st.(*Store).DB().ExecContext(ctx, `
				INSERT INTO jobstore_dead_jobs (
					id, queue, job_type, payload, retry_count, priority,
					scheduled_at, enqueued_at, reason, failed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID.String(), e.Queue, e.Type, e.Payload, e.RetryCount, e.Priority,
				toNanos(e.ScheduledAt), toNanos(e.EnqueuedAt), e.Reason, toNanos(e.FailedAt),
			)
			return err
		}),
	)
}

func TestMigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestNanosecondLeaseFencing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Date(2030, time.May, 6, 7, 8, 9, 123456789, time.UTC)
	r := &job.Record{
		ID:          id.NewJobID(),
		Queue:       "fencing",
		Type:        "email",
		Payload:     []byte("{}"),
		ScheduledAt: now,
		EnqueuedAt:  now,
	}
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, err := s.ClaimJob(ctx, job.ClaimParams{Queue: "fencing", Types: []string{"email"}, Now: now})
	if err != nil || got == nil {
		t.Fatalf("ClaimJob = %v, %v", got, err)
	}
	if !got.LeasedAt.Equal(now) {
		t.Fatalf("LeasedAt = %v, want %v", got.LeasedAt, now)
	}

	// One nanosecond off is a different lease.
	if err := s.CompleteJob(ctx, r.ID, now.Add(time.Nanosecond)); !errors.Is(err, jobstore.ErrLeaseLost) {
		t.Fatalf("CompleteJob(wrong lease): expected ErrLeaseLost, got %v", err)
	}
	if err := s.CompleteJob(ctx, r.ID, *got.LeasedAt); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestClosedStoreUnavailable(t *testing.T) {
	s := setupTestStore(t)
	_ = s.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, jobstore.ErrStoreUnavailable) {
		t.Errorf("Ping: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.ClaimJob(ctx, job.ClaimParams{Queue: "q", Types: []string{"t"}, Now: time.Now()}); !errors.Is(err, jobstore.ErrStoreUnavailable) {
		t.Errorf("ClaimJob: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.DeadLetterJob(ctx, id.NewJobID(), time.Now(), "x", time.Now()); !errors.Is(err, jobstore.ErrStoreUnavailable) {
		t.Errorf("DeadLetterJob: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewFromDBDoesNotClose(t *testing.T) {
	owner := setupTestStore(t)
	s := NewFromDB(owner.DB())

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := owner.Ping(context.Background()); err != nil {
		t.Fatalf("borrowed handle was closed: %v", err)
	}
}

func TestConstraintViolationIsNotRetryable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `
		INSERT INTO jobstore_jobs (id, queue, job_type, payload, scheduled_at, enqueued_at)
		VALUES (?, 'q', 't', NULL, 0, 0)`,
		id.NewJobID().String(),
	)
	if !isConstraint(err) {
		t.Fatalf("NULL payload insert: expected a constraint error, got %v", err)
	}
	if isDuplicateKey(err) {
		t.Errorf("NOT NULL failure classified as duplicate key: %v", err)
	}

	wrapped := rejected("insert job", err)
	if !errors.Is(wrapped, jobstore.ErrInvalidRecord) {
		t.Errorf("rejected() = %v, want ErrInvalidRecord", wrapped)
	}
	if jobstore.IsRetryable(wrapped) {
		t.Errorf("IsRetryable(%v) = true, want false", wrapped)
	}
}

func TestInsertNilPayload(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := &job.Record{
		ID:          id.NewJobID(),
		Queue:       "q",
		Type:        "t",
		ScheduledAt: time.Unix(0, 0).UTC(),
		EnqueuedAt:  time.Unix(0, 0).UTC(),
	}
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob(nil payload): %v", err)
	}
	got, err := s.GetJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Errorf("Payload = %q, want empty", got.Payload)
	}
}
