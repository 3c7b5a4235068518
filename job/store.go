package job

import (
	"context"
	"time"

	"github.com/xraph/jobstore/id"
)

// ClaimParams selects the record a checkout may lease.
type ClaimParams struct {
	Queue string
	// Types lists the job types the caller can handle. Must be non-empty.
	Types []string
	// Now is the checkout instant. It gates ScheduledAt and becomes LeasedAt.
	Now time.Time
}

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by derived state. Empty means both.
	State State
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by derived state. Empty means both.
	State State
}

// Store defines the persistence contract for the live queue.
//
// Every method is a single atomic backend operation. Methods that resolve a
// lease take the lease's LeasedAt as a fencing token: the write applies only
// if the stored record still carries that exact value, otherwise
// jobstore.ErrLeaseLost is returned and nothing changes.
type Store interface {
	// InsertJob persists a new waiting record.
	InsertJob(ctx context.Context, r *Record) error

	// ClaimJob atomically selects the best eligible record (priority desc,
	// enqueued_at asc, id asc), sets LeasedAt to p.Now, increments
	// RetryCount and returns the updated record. Returns (nil, nil) when
	// nothing is eligible.
	ClaimJob(ctx context.Context, p ClaimParams) (*Record, error)

	// CompleteJob deletes a leased record.
	CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error

	// ReleaseJob returns a leased record to the waiting state, leaving
	// RetryCount and ScheduledAt unchanged.
	ReleaseJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error

	// CancelJob deletes a waiting record. Returns jobstore.ErrJobNotFound if
	// no waiting record has that ID.
	CancelJob(ctx context.Context, jobID id.JobID) error

	// UnscheduleJob deletes a waiting record of the given type and returns
	// it. Returns jobstore.ErrJobNotFound otherwise.
	UnscheduleJob(ctx context.Context, jobID id.JobID, jobType string) (*Record, error)

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// ListJobs returns records ordered by enqueue time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Record, error)

	// CountJobs returns the number of records matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// ReleaseExpiredLeases returns every record of queue leased before
	// leasedBefore to the waiting state and reports how many were released.
	ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error)
}
