package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

const jobColumns = `id, queue, job_type, payload, retry_count, priority,
	scheduled_at, enqueued_at, leased_at`

const deadColumns = `id, queue, job_type, payload, retry_count, priority,
	scheduled_at, enqueued_at, reason, failed_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Record, error) {
	var (
		rawID                   string
		r                       job.Record
		scheduledAt, enqueuedAt int64
		leasedAt                sql.NullInt64
	)
	err := row.Scan(
		&rawID, &r.Queue, &r.Type, &r.Payload, &r.RetryCount, &r.Priority,
		&scheduledAt, &enqueuedAt, &leasedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/sqlite: parse job id %q: %w", rawID, err)
	}
	r.ScheduledAt = fromNanos(scheduledAt)
	r.EnqueuedAt = fromNanos(enqueuedAt)
	if leasedAt.Valid {
		t := fromNanos(leasedAt.Int64)
		r.LeasedAt = &t
	}
	return &r, nil
}

func scanDead(row scanner) (*dlq.Entry, error) {
	var (
		rawID                             string
		e                                 dlq.Entry
		scheduledAt, enqueuedAt, failedAt int64
	)
	err := row.Scan(
		&rawID, &e.Queue, &e.Type, &e.Payload, &e.RetryCount, &e.Priority,
		&scheduledAt, &enqueuedAt, &e.Reason, &failedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/sqlite: parse dlq id %q: %w", rawID, err)
	}
	e.ScheduledAt = fromNanos(scheduledAt)
	e.EnqueuedAt = fromNanos(enqueuedAt)
	e.FailedAt = fromNanos(failedAt)
	return &e, nil
}

func leasedAtArg(r *job.Record) any {
	if r.LeasedAt == nil {
		return nil
	}
	return toNanos(*r.LeasedAt)
}

func stateClause(state job.State) string {
	switch state {
	case job.StateWaiting:
		return " AND leased_at IS NULL"
	case job.StateLeased:
		return " AND leased_at IS NOT NULL"
	default:
		return ""
	}
}
