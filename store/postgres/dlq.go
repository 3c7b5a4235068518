package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// DeadLetterJob moves a leased record into jobstore_dead_jobs.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	return s.transact(ctx, "dead letter", func(tx pgx.Tx) error {
		r, err := scanJob(tx.QueryRow(ctx, `
			DELETE FROM jobstore_jobs
			WHERE id = $1 AND leased_at = $2
			RETURNING `+jobColumns,
			jobID.String(), leasedAt,
		))
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrLeaseLost
			}
			return err
		}
		return insertDead(ctx, tx, dlq.NewEntry(r, reason, failedAt))
	})
}

func insertDead(ctx context.Context, tx pgx.Tx, e *dlq.Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO jobstore_dead_jobs (
			id, queue, job_type, payload, retry_count, priority,
			scheduled_at, enqueued_at, reason, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID.String(), e.Queue, e.Type, job.PayloadBytes(e.Payload), e.RetryCount, e.Priority,
		e.ScheduledAt, e.EnqueuedAt, e.Reason, e.FailedAt,
	)
	if isDuplicateKey(err) {
		return jobstore.ErrJobAlreadyExists
	}
	return err
}

// RequeueDLQ moves an entry back to jobstore_jobs as a waiting record.
func (s *Store) RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	var out *job.Record
	err := s.transact(ctx, "requeue", func(tx pgx.Tx) error {
		e, err := scanDead(tx.QueryRow(ctx,
			`DELETE FROM jobstore_dead_jobs WHERE id = $1 RETURNING `+deadColumns,
			jobID.String(),
		))
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrDLQNotFound
			}
			return err
		}

		r := e.Requeued(scheduledAt)
		_, err = tx.Exec(ctx, `
			INSERT INTO jobstore_jobs (
				id, queue, job_type, payload, retry_count, priority,
				scheduled_at, enqueued_at, leased_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
			r.ID.String(), r.Queue, r.Type, job.PayloadBytes(r.Payload), r.RetryCount, r.Priority,
			r.ScheduledAt, r.EnqueuedAt,
		)
		if err != nil {
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
	e, err := scanDead(s.pool.QueryRow(ctx,
		`SELECT `+deadColumns+` FROM jobstore_dead_jobs WHERE id = $1`,
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
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY failed_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list dlq", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDead(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobstore/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable("iterate dlq rows", err)
	}
	return entries, nil
}

// CountDLQ returns the number of entries in queue, or in all queues.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	query := `SELECT COUNT(*) FROM jobstore_dead_jobs`
	args := []any{}
	if queue != "" {
		query += ` WHERE queue = $1`
		args = append(args, queue)
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count dlq", err)
	}
	return n, nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobstore_dead_jobs WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, unavailable("purge dlq", err)
	}
	return tag.RowsAffected(), nil
}
