// Package worker runs leased jobs. An Executor resolves one lease through
// middleware and the registered handler; a Pool keeps concurrent pollers
// checking out jobs and feeding them to the Executor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/middleware"
	"github.com/xraph/jobstore/queue"
)

// Executor runs a single leased job and resolves its lease.
type Executor struct {
	registry *job.Registry
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor. Middleware runs outermost first.
func NewExecutor(registry *job.Registry, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Registry returns the handler registry.
func (e *Executor) Registry() *job.Registry { return e.registry }

// Execute runs the handler registered for the lease's job type and resolves
// the lease:
//
//   - success: Complete
//   - permanent error, or RetryCount above the type's MaxRetries: DeadLetter
//   - any other error: Fail, leaving the job eligible again
//
// A type with no registered handler is failed and ErrNoHandler is returned.
// The handler error is returned as is; a resolution error is joined to it.
func (e *Executor) Execute(ctx context.Context, l *queue.Lease) error {
	// Resolve even if ctx was cancelled while the handler ran.
	rctx := context.WithoutCancel(ctx)

	h, ok := e.registry.Get(l.Type())
	if !ok {
		err := fmt.Errorf("%w: %q", jobstore.ErrNoHandler, l.Type())
		return errors.Join(err, e.resolve(l, "fail", l.Fail(rctx)))
	}

	rec := l.Record()
	err := e.mw(ctx, rec, func(ctx context.Context) error {
		return h.Fn(ctx, rec.Payload)
	})

	switch {
	case err == nil:
		return e.resolve(l, "complete", l.Complete(rctx))

	case job.IsPermanent(err) || l.RetryCount() > h.Opts.MaxRetries:
		e.logger.Warn("job dead-lettered",
			slog.String("job_id", l.ID().String()),
			slog.String("job_type", l.Type()),
			slog.Int("retry_count", l.RetryCount()),
			slog.Bool("permanent", job.IsPermanent(err)),
			slog.String("error", err.Error()),
		)
		return errors.Join(err, e.resolve(l, "dead_letter", l.DeadLetter(rctx, err.Error())))

	default:
		e.logger.Info("job failed, will retry",
			slog.String("job_id", l.ID().String()),
			slog.String("job_type", l.Type()),
			slog.Int("attempt", l.RetryCount()),
			slog.Int("max_retries", h.Opts.MaxRetries),
		)
		return errors.Join(err, e.resolve(l, "fail", l.Fail(rctx)))
	}
}

func (e *Executor) resolve(l *queue.Lease, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, jobstore.ErrLeaseLost) {
		e.logger.Warn("lease lost before resolution",
			slog.String("op", op),
			slog.String("job_id", l.ID().String()),
		)
	}
	return fmt.Errorf("worker: %s %s: %w", op, l.ID(), err)
}
