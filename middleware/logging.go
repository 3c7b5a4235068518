package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobstore/job"
)

// Logging returns middleware that logs each attempt's start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		attrs := []any{
			slog.String("job_type", r.Type),
			slog.String("job_id", r.ID.String()),
			slog.String("queue", r.Queue),
			slog.Int("attempt", r.RetryCount),
		}
		logger.Debug("job started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Error("job failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job completed", attrs...)
		}
		return err
	}
}
