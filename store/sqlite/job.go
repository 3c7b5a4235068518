package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// InsertJob persists a new waiting record.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	if err := insertJob(ctx, s.db, r); err != nil {
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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertJob(ctx context.Context, db execer, r *job.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO jobstore_jobs (
			id, queue, job_type, payload, retry_count, priority,
			scheduled_at, enqueued_at, leased_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Queue, r.Type, job.PayloadBytes(r.Payload), r.RetryCount, r.Priority,
		toNanos(r.ScheduledAt), toNanos(r.EnqueuedAt), leasedAtArg(r),
	)
	return err
}

// ClaimJob leases the best eligible record in one statement.
func (s *Store) ClaimJob(ctx context.Context, p job.ClaimParams) (*job.Record, error) {
	now := toNanos(p.Now)
	args := make([]any, 0, len(p.Types)+4)
	args = append(args, now, p.Queue)
	for _, t := range p.Types {
		args = append(args, t)
	}
	args = append(args, now)

	row := s.db.QueryRowContext(ctx, `
		UPDATE jobstore_jobs
		SET leased_at = ?, retry_count = retry_count + 1
		WHERE id = (
			SELECT id FROM jobstore_jobs
			WHERE queue = ?
			  AND job_type IN (`+placeholders(len(p.Types))+`)
			  AND leased_at IS NULL
			  AND scheduled_at <= ?
			ORDER BY priority DESC, enqueued_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		args...,
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

func placeholders(n int) string {
	if n <= 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// CompleteJob deletes a leased record.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobstore_jobs WHERE id = ? AND leased_at = ?`,
		jobID.String(), toNanos(leasedAt),
	)
	if err != nil {
		return unavailable("complete job", err)
	}
	if affected(res) == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// ReleaseJob returns a leased record to the waiting state.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobstore_jobs SET leased_at = NULL WHERE id = ? AND leased_at = ?`,
		jobID.String(), toNanos(leasedAt),
	)
	if err != nil {
		return unavailable("release job", err)
	}
	if affected(res) == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// CancelJob deletes a waiting record.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobstore_jobs WHERE id = ? AND leased_at IS NULL`,
		jobID.String(),
	)
	if err != nil {
		return unavailable("cancel job", err)
	}
	if affected(res) == 0 {
		return jobstore.ErrJobNotFound
	}
	return nil
}

// UnscheduleJob deletes a waiting record of the given type and returns it.
func (s *Store) UnscheduleJob(ctx context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM jobstore_jobs
		WHERE id = ? AND job_type = ? AND leased_at IS NULL
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
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobstore_jobs WHERE id = ?`,
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

	if opts.Queue != "" {
		query += " AND queue = ?"
		args = append(args, opts.Queue)
	}
	query += stateClause(opts.State)
	query += " ORDER BY enqueued_at ASC, id ASC"
	query += limitClause(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	defer rows.Close()

	var out []*job.Record
	for rows.Next() {
		r, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobstore/sqlite: scan job row: %w", scanErr)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate job rows", err)
	}
	return out, nil
}

// limitClause renders LIMIT/OFFSET. SQLite needs a LIMIT before OFFSET;
// -1 means unbounded.
func limitClause(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	default:
		return ""
	}
}

// CountJobs returns the number of records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM jobstore_jobs WHERE 1=1`
	args := []any{}
	if opts.Queue != "" {
		query += " AND queue = ?"
		args = append(args, opts.Queue)
	}
	query += stateClause(opts.State)

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count jobs", err)
	}
	return n, nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobstore_jobs SET leased_at = NULL
		WHERE queue = ? AND leased_at IS NOT NULL AND leased_at < ?`,
		queue, toNanos(leasedBefore),
	)
	if err != nil {
		return 0, unavailable("release expired leases", err)
	}
	return affected(res), nil
}
