package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/jobstore/job"
)

// Timeout returns middleware that bounds an attempt by the registered
// type's Options.Timeout. Types with no timeout, or no registration, run
// with the caller's context unchanged.
func Timeout(logger *slog.Logger, reg *job.Registry) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		h, ok := reg.Get(r.Type)
		if !ok || h.Opts.Timeout <= 0 {
			return next(ctx)
		}

		logger.Debug("job timeout set",
			slog.String("job_id", r.ID.String()),
			slog.Duration("timeout", h.Opts.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, h.Opts.Timeout)
		defer cancel()
		return next(ctx)
	}
}
