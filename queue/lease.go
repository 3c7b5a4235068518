package queue

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

const (
	leaseOpen int32 = iota
	leaseResolving
	leaseResolved
)

// Lease is the exclusive right to process one checked-out job.
//
// Exactly one of Complete, Fail or DeadLetter succeeds per lease. Later
// calls return jobstore.ErrLeaseResolved without touching the store. A
// resolution that fails with a transient store error leaves the lease open
// so it can be retried. If the lease was reaped in the meantime, resolution
// returns jobstore.ErrLeaseLost and the lease is closed.
type Lease struct {
	q     *Queue
	rec   *job.Record
	state atomic.Int32
}

func newLease(q *Queue, r *job.Record) *Lease {
	return &Lease{q: q, rec: r}
}

// ID returns the job ID.
func (l *Lease) ID() id.JobID { return l.rec.ID }

// Type returns the job type.
func (l *Lease) Type() string { return l.rec.Type }

// Queue returns the queue name.
func (l *Lease) Queue() string { return l.rec.Queue }

// Payload returns a copy of the stored payload.
func (l *Lease) Payload() []byte { return slices.Clone(l.rec.Payload) }

// RetryCount is the number of checkouts including this one, so 1 on the
// first attempt.
func (l *Lease) RetryCount() int { return l.rec.RetryCount }

// Priority returns the job priority.
func (l *Lease) Priority() int { return l.rec.Priority }

// ScheduledAt returns when the job became eligible.
func (l *Lease) ScheduledAt() time.Time { return l.rec.ScheduledAt }

// EnqueuedAt returns when the job was enqueued.
func (l *Lease) EnqueuedAt() time.Time { return l.rec.EnqueuedAt }

// LeasedAt returns the lease timestamp as stored by the backend.
func (l *Lease) LeasedAt() time.Time { return *l.rec.LeasedAt }

// Record returns a copy of the record as it was checked out.
func (l *Lease) Record() *job.Record { return l.rec.Clone() }

// Resolved reports whether the lease has been resolved.
func (l *Lease) Resolved() bool { return l.state.Load() == leaseResolved }

// Complete removes the job from the queue.
func (l *Lease) Complete(ctx context.Context) error {
	return l.resolve(ctx, "complete", func(ctx context.Context) error {
		if err := l.q.store.CompleteJob(ctx, l.rec.ID, l.LeasedAt()); err != nil {
			return err
		}
		elapsed := l.q.now().Sub(l.LeasedAt())
		l.q.extensions.EmitJobCompleted(ctx, l.Record(), elapsed)
		return nil
	})
}

// Fail returns the job to the waiting state. Its retry count is kept and
// its ScheduledAt is unchanged, so it is eligible again immediately.
func (l *Lease) Fail(ctx context.Context) error {
	return l.resolve(ctx, "fail", func(ctx context.Context) error {
		if err := l.q.store.ReleaseJob(ctx, l.rec.ID, l.LeasedAt()); err != nil {
			return err
		}
		l.q.extensions.EmitJobFailed(ctx, l.Record())
		return nil
	})
}

// DeadLetter moves the job to the dead-letter store with the given reason.
// The move is atomic: on jobstore.ErrTransactionFailed the job is still
// leased in the live queue and the lease stays open.
func (l *Lease) DeadLetter(ctx context.Context, reason string) error {
	return l.resolve(ctx, "dead_letter", func(ctx context.Context) error {
		if err := l.q.store.DeadLetterJob(ctx, l.rec.ID, l.LeasedAt(), reason, l.q.now().UTC()); err != nil {
			return err
		}
		l.q.extensions.EmitJobDeadLettered(ctx, l.Record(), reason)
		return nil
	})
}

func (l *Lease) resolve(ctx context.Context, op string, fn func(context.Context) error) error {
	if !l.state.CompareAndSwap(leaseOpen, leaseResolving) {
		return jobstore.ErrLeaseResolved
	}

	err := fn(ctx)
	if err == nil || errors.Is(err, jobstore.ErrLeaseLost) {
		l.state.Store(leaseResolved)
	} else {
		l.state.Store(leaseOpen)
	}

	if err != nil {
		l.q.logger.Warn("lease resolution failed",
			slog.String("op", op),
			slog.String("job_id", l.rec.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return err
}
