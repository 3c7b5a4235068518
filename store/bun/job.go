package bunstore

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// InsertJob persists a new waiting record.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	if _, err := s.db.NewInsert().Model(toJobModel(r)).Exec(ctx); err != nil {
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

// ClaimJob leases the best eligible record using FOR UPDATE SKIP LOCKED.
func (s *Store) ClaimJob(ctx context.Context, p job.ClaimParams) (*job.Record, error) {
	m := new(jobModel)
	err := s.db.NewRaw(`
		UPDATE jobstore_jobs
		SET leased_at = ?2, retry_count = retry_count + 1
		WHERE id = (
			SELECT id FROM jobstore_jobs
			WHERE queue = ?0
			  AND job_type = ANY(?1)
			  AND leased_at IS NULL
			  AND scheduled_at <= ?2
			ORDER BY priority DESC, enqueued_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		p.Queue, pgdialect.Array(p.Types), p.Now,
	).Scan(ctx, m)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, unavailable("claim job", err)
	}
	return fromJobModel(m)
}

// CompleteJob deletes a leased record.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	res, err := s.db.NewDelete().
		Model((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Where("leased_at = ?", leasedAt).
		Exec(ctx)
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
	res, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("leased_at = NULL").
		Where("id = ?", jobID.String()).
		Where("leased_at = ?", leasedAt).
		Exec(ctx)
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
	res, err := s.db.NewDelete().
		Model((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Where("leased_at IS NULL").
		Exec(ctx)
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
	m := new(jobModel)
	err := s.db.NewRaw(`
		DELETE FROM jobstore_jobs
		WHERE id = ? AND job_type = ? AND leased_at IS NULL
		RETURNING *`,
		jobID.String(), jobType,
	).Scan(ctx, m)
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("unschedule job", err)
	}
	return fromJobModel(m)
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("get job", err)
	}
	return fromJobModel(m)
}

func applyJobFilter(q *bun.SelectQuery, queue string, state job.State) *bun.SelectQuery {
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	switch state {
	case job.StateWaiting:
		q = q.Where("leased_at IS NULL")
	case job.StateLeased:
		q = q.Where("leased_at IS NOT NULL")
	}
	return q
}

// ListJobs returns records ordered by enqueue time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	var models []jobModel
	q := applyJobFilter(s.db.NewSelect().Model(&models), opts.Queue, opts.State).
		Order("enqueued_at ASC", "id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, unavailable("list jobs", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := applyJobFilter(s.db.NewSelect().Model((*jobModel)(nil)), opts.Queue, opts.State).
		Count(ctx)
	if err != nil {
		return 0, unavailable("count jobs", err)
	}
	return int64(n), nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*jobModel)(nil)).
		Set("leased_at = NULL").
		Where("queue = ?", queue).
		Where("leased_at IS NOT NULL").
		Where("leased_at < ?", leasedBefore).
		Exec(ctx)
	if err != nil {
		return 0, unavailable("release expired leases", err)
	}
	return affected(res), nil
}
