package ext

import (
	"context"
	"time"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a record is persisted.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, r *job.Record) error
}

// JobLeased is called after a checkout leased a record.
type JobLeased interface {
	OnJobLeased(ctx context.Context, r *job.Record) error
}

// JobCompleted is called after a leased job was completed and removed.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error
}

// JobFailed is called after a leased job was returned to the queue for
// another attempt.
type JobFailed interface {
	OnJobFailed(ctx context.Context, r *job.Record) error
}

// JobDeadLettered is called after a job was moved to the dead-letter store.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, r *job.Record, reason string) error
}

// JobCancelled is called after a waiting job was cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, jobID id.JobID) error
}

// JobUnscheduled is called after a waiting job was unscheduled.
type JobUnscheduled interface {
	OnJobUnscheduled(ctx context.Context, r *job.Record) error
}

// LeasesReaped is called when expired leases were returned to a queue.
type LeasesReaped interface {
	OnLeasesReaped(ctx context.Context, queue string, count int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
