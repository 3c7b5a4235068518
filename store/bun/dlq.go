package bunstore

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// DeadLetterJob moves a leased record into jobstore_dead_jobs.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	return s.transact(ctx, "dead letter", func(ctx context.Context, tx bun.Tx) error {
		m := new(jobModel)
		err := tx.NewRaw(`
			DELETE FROM jobstore_jobs
			WHERE id = ? AND leased_at = ?
			RETURNING *`,
			jobID.String(), leasedAt,
		).Scan(ctx, m)
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrLeaseLost
			}
			return err
		}

		r, err := fromJobModel(m)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(toDeadModel(dlq.NewEntry(r, reason, failedAt))).Exec(ctx); err != nil {
			if isDuplicateKey(err) {
				return jobstore.ErrJobAlreadyExists
			}
			return err
		}
		return nil
	})
}

// RequeueDLQ moves an entry back to jobstore_jobs as a waiting record.
func (s *Store) RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	var out *job.Record
	err := s.transact(ctx, "requeue", func(ctx context.Context, tx bun.Tx) error {
		m := new(deadModel)
		err := tx.NewRaw(
			`DELETE FROM jobstore_dead_jobs WHERE id = ? RETURNING *`,
			jobID.String(),
		).Scan(ctx, m)
		if err != nil {
			if isNoRows(err) {
				return jobstore.ErrDLQNotFound
			}
			return err
		}

		e, err := fromDeadModel(m)
		if err != nil {
			return err
		}
		r := e.Requeued(scheduledAt)
		if _, err := tx.NewInsert().Model(toJobModel(r)).Exec(ctx); err != nil {
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
	m := new(deadModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, jobstore.ErrDLQNotFound
		}
		return nil, unavailable("get dlq", err)
	}
	return fromDeadModel(m)
}

// ListDLQ returns entries, most recently failed first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []deadModel
	q := s.db.NewSelect().Model(&models)

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}

	q = q.Order("failed_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, unavailable("list dlq", err)
	}

	entries := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, err := fromDeadModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountDLQ returns the number of entries in queue, or in all queues.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	q := s.db.NewSelect().Model((*deadModel)(nil))
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, unavailable("count dlq", err)
	}
	return int64(n), nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*deadModel)(nil)).
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, unavailable("purge dlq", err)
	}
	return affected(res), nil
}
