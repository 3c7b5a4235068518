package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

const jobColumns = `id, queue, job_type, payload, retry_count, priority,
	scheduled_at, enqueued_at, leased_at`

const deadColumns = `id, queue, job_type, payload, retry_count, priority,
	scheduled_at, enqueued_at, reason, failed_at`

func scanJob(row pgx.Row) (*job.Record, error) {
	var (
		rawID    string
		r        job.Record
		leasedAt *time.Time
	)
	err := row.Scan(
		&rawID, &r.Queue, &r.Type, &r.Payload, &r.RetryCount, &r.Priority,
		&r.ScheduledAt, &r.EnqueuedAt, &leasedAt,
	)
	if err != nil {
		return nil, err
	}

	r.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/postgres: parse job id %q: %w", rawID, err)
	}
	r.ScheduledAt = r.ScheduledAt.UTC()
	r.EnqueuedAt = r.EnqueuedAt.UTC()
	if leasedAt != nil {
		t := leasedAt.UTC()
		r.LeasedAt = &t
	}
	return &r, nil
}

func scanDead(row pgx.Row) (*dlq.Entry, error) {
	var (
		rawID string
		e     dlq.Entry
	)
	err := row.Scan(
		&rawID, &e.Queue, &e.Type, &e.Payload, &e.RetryCount, &e.Priority,
		&e.ScheduledAt, &e.EnqueuedAt, &e.Reason, &e.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/postgres: parse dlq id %q: %w", rawID, err)
	}
	e.ScheduledAt = e.ScheduledAt.UTC()
	e.EnqueuedAt = e.EnqueuedAt.UTC()
	e.FailedAt = e.FailedAt.UTC()
	return &e, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Record, error) {
	defer rows.Close()

	var out []*job.Record
	for rows.Next() {
		r, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobstore/postgres: scan job row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate job rows", err)
	}
	return out, nil
}

// stateClause renders the leased_at predicate for a state filter.
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
