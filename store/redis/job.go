package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// InsertJob stores the record and indexes it as scheduled.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	jID := r.ID.String()
	res, err := s.run(ctx, insertScript, s.keys.job(jID),
		jID, r.Queue, r.Type, r.Payload, r.RetryCount, r.Priority,
		stamp(r.ScheduledAt), millis(r.ScheduledAt), stamp(r.EnqueuedAt),
	)
	if err != nil {
		return unavailable("insert job", err)
	}
	if status(res) == "EXISTS" {
		return jobstore.ErrJobAlreadyExists
	}
	return nil
}

// ClaimJob leases the best eligible record in one script call.
func (s *Store) ClaimJob(ctx context.Context, p job.ClaimParams) (*job.Record, error) {
	if len(p.Types) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(p.Types)+3)
	args = append(args, p.Queue, stamp(p.Now), millis(p.Now))
	for _, t := range p.Types {
		args = append(args, t)
	}

	res, err := s.run(ctx, claimScript, s.keys.leased(p.Queue), args...)
	if err != nil {
		if isNil(err) {
			return nil, nil
		}
		return nil, unavailable("claim job", err)
	}

	m, err := flatHash(res)
	if err != nil {
		return nil, err
	}
	return mapToRecord(m["id"], m)
}

// CompleteJob deletes a leased record.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	jID := jobID.String()
	res, err := s.run(ctx, completeScript, s.keys.job(jID), jID, stamp(leasedAt))
	if err != nil {
		return unavailable("complete job", err)
	}
	if status(res) == "LOST" {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// ReleaseJob returns a leased record to the waiting state.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	jID := jobID.String()
	res, err := s.run(ctx, releaseScript, s.keys.job(jID), jID, stamp(leasedAt))
	if err != nil {
		return unavailable("release job", err)
	}
	if status(res) == "LOST" {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// CancelJob deletes a waiting record.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	_, err := s.removeWaiting(ctx, jobID, "")
	return err
}

// UnscheduleJob deletes a waiting record of the given type and returns it.
func (s *Store) UnscheduleJob(ctx context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	return s.removeWaiting(ctx, jobID, jobType)
}

func (s *Store) removeWaiting(ctx context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	jID := jobID.String()
	res, err := s.run(ctx, removeWaitingScript, s.keys.job(jID), jID, jobType)
	if err != nil {
		return nil, unavailable("remove waiting job", err)
	}
	if status(res) == "NOTFOUND" {
		return nil, jobstore.ErrJobNotFound
	}
	m, err := flatHash(res)
	if err != nil {
		return nil, err
	}
	return mapToRecord(jID, m)
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	jID := jobID.String()
	m, err := s.client.HGetAll(ctx, s.keys.job(jID)).Result()
	if err != nil {
		return nil, unavailable("get job", err)
	}
	if len(m) == 0 {
		return nil, jobstore.ErrJobNotFound
	}
	return mapToRecord(jID, m)
}

// ListJobs returns records ordered by enqueue time, then ID. The index is
// read in order and state is filtered client-side.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	by := &goredis.ZRangeBy{Min: "-", Max: "+"}
	if opts.State == "" && (opts.Limit > 0 || opts.Offset > 0) {
		by.Offset = int64(opts.Offset)
		by.Count = -1
		if opts.Limit > 0 {
			by.Count = int64(opts.Limit)
		}
	}

	members, err := s.client.ZRangeByLex(ctx, s.keys.jobIndex(opts.Queue), by).Result()
	if err != nil {
		return nil, unavailable("list jobs", err)
	}

	records, err := s.loadRecords(ctx, members)
	if err != nil {
		return nil, err
	}
	if opts.State == "" {
		return records, nil
	}

	filtered := records[:0]
	for _, r := range records {
		if r.State() == opts.State {
			filtered = append(filtered, r)
		}
	}
	return paginate(filtered, opts.Offset, opts.Limit), nil
}

func (s *Store) loadRecords(ctx context.Context, members []string) ([]*job.Record, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, s.keys.job(memberID(m)))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, unavailable("load jobs", err)
		}
	}

	out := make([]*job.Record, 0, len(members))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue // removed between the index read and the load
		}
		r, err := mapToRecord(memberID(members[i]), m)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// CountJobs returns the number of records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	queues := []string{opts.Queue}
	if opts.Queue == "" {
		if opts.State == "" {
			n, err := s.client.ZCard(ctx, s.keys.jobIndex("")).Result()
			if err != nil {
				return 0, unavailable("count jobs", err)
			}
			return n, nil
		}
		var err error
		if queues, err = s.client.SMembers(ctx, s.keys.queues()).Result(); err != nil {
			return 0, unavailable("count jobs", err)
		}
	}

	var total int64
	for _, q := range queues {
		all, err := s.client.ZCard(ctx, s.keys.jobIndex(q)).Result()
		if err != nil {
			return 0, unavailable("count jobs", err)
		}
		leased, err := s.client.ZCard(ctx, s.keys.leased(q)).Result()
		if err != nil {
			return 0, unavailable("count jobs", err)
		}
		switch opts.State {
		case job.StateLeased:
			total += leased
		case job.StateWaiting:
			total += all - leased
		default:
			total += all
		}
	}
	return total, nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error) {
	res, err := s.run(ctx, reapScript, s.keys.leased(queue),
		queue, stamp(leasedBefore), millis(leasedBefore),
	)
	if err != nil {
		return 0, unavailable("release expired leases", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("jobstore/redis: unexpected reap reply %T", res)
	}
	return n, nil
}
