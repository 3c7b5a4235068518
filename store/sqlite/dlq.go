package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// DeadLetterJob moves a leased record into jobstore_dead_jobs.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	return s.transact(ctx, "dead letter", func(tx *sql.Tx) error {
		r, err := scanJob(tx.QueryRowContext(ctx, `
			DELETE FROM jobstore_jobs
			WHERE id = ? AND leased_at = ?
			RETURNING `+jobColumns,
			jobID.String(), toNanos(leasedAt),
		))
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrLeaseLost
			}
			return err
		}

		e := dlq.NewEntry(r, reason, failedAt)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobstore_dead_jobs (
				id, queue, job_type, payload, retry_count, priority,
				scheduled_at, enqueued_at, reason, failed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.Queue, e.Type, job.PayloadBytes(e.Payload), e.RetryCount, e.Priority,
			toNanos(e.ScheduledAt), toNanos(e.EnqueuedAt), e.Reason, toNanos(e.FailedAt),
		)
		if isDuplicateKey(err) {
			return jobstore.ErrJobAlreadyExists
		}
		return err
	})
}

// RequeueDLQ moves an entry back to jobstore_jobs as a waiting record.
func (s *Store) RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	var out *job.Record
	err := s.transact(ctx, "requeue", func(tx *sql.Tx) error {
		e, err := scanDead(tx.QueryRowContext(ctx,
			`DELETE FROM jobstore_dead_jobs WHERE id = ? RETURNING `+deadColumns,
			jobID.String(),
		))
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrDLQNotFound
			}
			return err
		}

		r := e.Requeued(scheduledAt)
		if err := insertJob(ctx, tx, r); err != nil {
			if isDuplicateKey(err) {
				return jobstore.ErrJobAlreadyExists
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDLQ retrieves an entry by job ID.
func (s *Store) GetDLQ(ctx context.Context, jobID id.JobID) (*dlq.Entry, error) {
	e, err := scanDead(s.db.QueryRowContext(ctx,
		`SELECT `+deadColumns+` FROM jobstore_dead_jobs WHERE id = ?`,
		jobID.String(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrDLQNotFound
		}
		return nil, unavailable("get dlq", err)
	}
	return e, nil
}

// ListDLQ returns entries, most recently failed first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + deadColumns + ` FROM jobstore_dead_jobs WHERE 1=1`
	args := []any{}

	if opts.Queue != "" {
		query += " AND queue = ?"
		args = append(args, opts.Queue)
	}
	query += " ORDER BY failed_at DESC, id DESC"
	query += limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list dlq", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDead(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobstore/sqlite: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate dlq rows", err)
	}
	return entries, nil
}

// CountDLQ returns the number of entries in queue, or in all queues.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	query := `SELECT COUNT(*) FROM jobstore_dead_jobs`
	args := []any{}
	if queue != "" {
		query += ` WHERE queue = ?`
		args = append(args, queue)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count dlq", err)
	}
	return n, nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobstore_dead_jobs WHERE failed_at < ?`,
		toNanos(before),
	)
	if err != nil {
		return 0, unavailable("purge dlq", err)
	}
	return affected(res), nil
}
