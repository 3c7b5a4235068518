package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobstore/codec"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Backend is the persistence a Queue needs: the live queue plus the
// dead-letter store it moves failed jobs into.
type Backend interface {
	job.Store
	dlq.Store
}

// Queue enqueues, checks out and removes jobs of one named queue.
// It is safe for concurrent use.
type Queue struct {
	name       string
	store      Backend
	codec      codec.Codec
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithName sets the queue name. Defaults to job.DefaultQueue.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// WithCodec sets the codec used by EnqueueJob and UnscheduleJob.
// Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(q *Queue) { q.codec = c }
}

// WithExtensions sets the extension registry notified of lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the time source used for enqueue timestamps, Poll
// and lease bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue over s.
func New(s Backend, opts ...Option) *Queue {
	q := &Queue{
		name:   job.DefaultQueue,
		store:  s,
		codec:  codec.JSON,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.extensions == nil {
		q.extensions = ext.NewRegistry(q.logger)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Codec returns the payload codec.
func (q *Queue) Codec() codec.Codec { return q.codec }

// Schedule persists a new waiting job that becomes eligible at scheduledAt.
// A zero scheduledAt means now.
func (q *Queue) Schedule(ctx context.Context, jobType string, payload []byte, scheduledAt time.Time, priority int) (id.JobID, error) {
	now := q.now().UTC()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	return q.insert(ctx, jobType, payload, scheduledAt, priority, now)
}

// Enqueue is Schedule with functional options. Without options the job is
// eligible immediately at priority 0.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.EnqueueOption) (id.JobID, error) {
	now := q.now().UTC()
	o := job.ApplyEnqueueOptions(now, 0, opts...)
	return q.insert(ctx, jobType, payload, o.ScheduledAt, o.Priority, now)
}

func (q *Queue) insert(ctx context.Context, jobType string, payload []byte, scheduledAt time.Time, priority int, now time.Time) (id.JobID, error) {
	r := &job.Record{
		ID:          id.NewJobID(),
		Queue:       q.name,
		Type:        jobType,
		Payload:     job.PayloadBytes(payload),
		Priority:    priority,
		ScheduledAt: scheduledAt.UTC(),
		EnqueuedAt:  now,
	}
	if err := q.store.InsertJob(ctx, r); err != nil {
		return id.Nil, err
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", jobType),
		slog.String("queue", q.name),
		slog.Int("priority", priority),
		slog.Time("scheduled_at", r.ScheduledAt),
	)
	q.extensions.EmitJobEnqueued(ctx, r)

	return r.ID, nil
}

// Checkout leases the best eligible job whose type is in jobTypes: highest
// priority first, then oldest. A job is eligible when it is not leased and
// its ScheduledAt is not after now. Returns (nil, nil) when no job is
// eligible or jobTypes is empty.
func (q *Queue) Checkout(ctx context.Context, jobTypes []string, now time.Time) (*Lease, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}

	r, err := q.store.ClaimJob(ctx, job.ClaimParams{
		Queue: q.name,
		Types: jobTypes,
		Now:   now.UTC(),
	})
	if err != nil || r == nil {
		return nil, err
	}

	l := newLease(q, r)
	q.extensions.EmitJobLeased(ctx, l.Record())

	return l, nil
}

// Poll is Checkout at the queue clock's current time.
func (q *Queue) Poll(ctx context.Context, jobTypes []string) (*Lease, error) {
	return q.Checkout(ctx, jobTypes, q.now())
}

// Cancel removes a waiting job. It returns jobstore.ErrJobNotFound if the
// job does not exist or is currently leased.
func (q *Queue) Cancel(ctx context.Context, jobID id.JobID) error {
	if err := q.store.CancelJob(ctx, jobID); err != nil {
		return err
	}
	q.logger.Debug("job cancelled", slog.String("job_id", jobID.String()))
	q.extensions.EmitJobCancelled(ctx, jobID)
	return nil
}

// Unschedule removes a waiting job of the given type and returns its
// payload. It returns jobstore.ErrJobNotFound if no waiting job matches
// both the ID and the type.
func (q *Queue) Unschedule(ctx context.Context, jobType string, jobID id.JobID) ([]byte, error) {
	r, err := q.store.UnscheduleJob(ctx, jobID, jobType)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("job unscheduled",
		slog.String("job_id", jobID.String()),
		slog.String("job_type", jobType),
	)
	q.extensions.EmitJobUnscheduled(ctx, r)
	return r.Payload, nil
}

// ReapExpired returns jobs of this queue whose lease is older than timeout
// to the waiting state. Holders of those leases can no longer resolve them.
// A non-positive timeout reaps nothing.
func (q *Queue) ReapExpired(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		return 0, nil
	}
	n, err := q.store.ReleaseExpiredLeases(ctx, q.name, q.now().UTC().Add(-timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Warn("expired leases released",
			slog.String("queue", q.name),
			slog.Int64("count", n),
			slog.Duration("lease_timeout", timeout),
		)
		q.extensions.EmitLeasesReaped(ctx, q.name, n)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Typed helpers
// ──────────────────────────────────────────────────

// EnqueueJob encodes payload with the queue's codec and enqueues it as a
// def.Name job. The definition's default priority applies unless an option
// overrides it. Nothing is stored if encoding fails.
func EnqueueJob[T any](ctx context.Context, q *Queue, def *job.Definition[T], payload T, opts ...job.EnqueueOption) (id.JobID, error) {
	data, err := def.Encode(q.codec, payload)
	if err != nil {
		return id.Nil, err
	}
	now := q.now().UTC()
	o := job.ApplyEnqueueOptions(now, def.Opts.Priority, opts...)
	return q.insert(ctx, def.Name, data, o.ScheduledAt, o.Priority, now)
}

// UnscheduleJob unschedules a def.Name job and decodes its payload. If
// decoding fails the job is already removed; the returned error is a
// *codec.DecodeError carrying the raw bytes.
func UnscheduleJob[T any](ctx context.Context, q *Queue, def *job.Definition[T], jobID id.JobID) (T, error) {
	data, err := q.Unschedule(ctx, def.Name, jobID)
	if err != nil {
		var zero T
		return zero, err
	}
	return def.Decode(q.codec, data)
}
