package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// InsertJob persists a new waiting record.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobstore_jobs (
			id, queue, job_type, payload, retry_count, priority,
			scheduled_at, enqueued_at, leased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID.String(), r.Queue, r.Type, job.PayloadBytes(r.Payload), r.RetryCount, r.Priority,
		r.ScheduledAt, r.EnqueuedAt, r.LeasedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return jobstore.ErrJobAlreadyExists
		}
		if isConstraint(err) {
			return rejected("insert job", err)
		}
		return unavailable("insert job", err)
	}
	return nil
}

// ClaimJob leases the best eligible record. Rows locked by a concurrent
// claim are skipped rather than waited on.
func (s *Store) ClaimJob(ctx context.Context, p job.ClaimParams) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobstore_jobs
		SET leased_at = $3, retry_count = retry_count + 1
		WHERE id = (
			SELECT id FROM jobstore_jobs
			WHERE queue = $1
			  AND job_type = ANY($2)
			  AND leased_at IS NULL
			  AND scheduled_at <= $3
			ORDER BY priority DESC, enqueued_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		p.Queue, p.Types, p.Now,
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, unavailable("claim job", err)
	}
	return r, nil
}

// CompleteJob deletes a leased record.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobstore_jobs WHERE id = $1 AND leased_at = $2`,
		jobID.String(), leasedAt,
	)
	if err != nil {
		return unavailable("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// ReleaseJob returns a leased record to the waiting state.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobstore_jobs SET leased_at = NULL WHERE id = $1 AND leased_at = $2`,
		jobID.String(), leasedAt,
	)
	if err != nil {
		return unavailable("release job", err)
	}
	if tag.RowsAffected() == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// CancelJob deletes a waiting record. A concurrent claim holds the row
// lock; once it commits the predicate no longer matches.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobstore_jobs WHERE id = $1 AND leased_at IS NULL`,
		jobID.String(),
	)
	if err != nil {
		return unavailable("cancel job", err)
	}
	if tag.RowsAffected() == 0 {
		return jobstore.ErrJobNotFound
	}
	return nil
}

// UnscheduleJob deletes a waiting record of the given type and returns it.
func (s *Store) UnscheduleJob(ctx context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM jobstore_jobs
		WHERE id = $1 AND job_type = $2 AND leased_at IS NULL
		RETURNING `+jobColumns,
		jobID.String(), jobType,
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("unschedule job", err)
	}
	return r, nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobstore_jobs WHERE id = $1`,
		jobID.String(),
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("get job", err)
	}
	return r, nil
}

// ListJobs returns records ordered by enqueue time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	query := `SELECT ` + jobColumns + ` FROM jobstore_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	query += stateClause(opts.State)
	query += " ORDER BY enqueued_at ASC, id ASC"

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
		return nil, unavailable("list jobs", err)
	}
	return collectJobs(rows)
}

// CountJobs returns the number of records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobstore_jobs WHERE 1=1`
	args := []any{}
	if opts.Queue != "" {
		query += " AND queue = $1"
		args = append(args, opts.Queue)
	}
	query += stateClause(opts.State)

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count jobs", err)
	}
	return n, nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobstore_jobs SET leased_at = NULL
		WHERE queue = $1 AND leased_at IS NOT NULL AND leased_at < $2`,
		queue, leasedBefore,
	)
	if err != nil {
		return 0, unavailable("release expired leases", err)
	}
	return tag.RowsAffected(), nil
}
