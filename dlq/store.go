package dlq

import (
	"context"
	"time"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// ListOpts controls pagination and filtering for DLQ list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the dead-letter store.
//
// DeadLetterJob and RequeueDLQ move a job between the live queue and the
// dead-letter store. Each runs as one transaction: either both the delete
// and the insert are applied or neither is.
type Store interface {
	// DeadLetterJob removes the leased record identified by (jobID, leasedAt)
	// from the live queue and inserts its dead-letter entry. Returns
	// jobstore.ErrLeaseLost if no record carries that lease and
	// jobstore.ErrTransactionFailed if the move could not commit.
	DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error

	// RequeueDLQ removes the entry and inserts a waiting live record with
	// the same ID, RetryCount 0 and the given ScheduledAt.
	RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error)

	// GetDLQ retrieves an entry by job ID.
	GetDLQ(ctx context.Context, jobID id.JobID) (*Entry, error)

	// ListDLQ returns entries ordered by FailedAt, newest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountDLQ returns the number of entries in queue, or in all queues
	// when queue is empty.
	CountDLQ(ctx context.Context, queue string) (int64, error)

	// PurgeDLQ removes entries with FailedAt before the given time.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)
}
