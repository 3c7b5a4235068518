package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// DeadLetterJob moves a leased record into the dead-letter store.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	jID := jobID.String()
	res, err := s.run(ctx, deadLetterScript, s.keys.job(jID),
		jID, stamp(leasedAt), reason, stamp(failedAt),
	)
	if err != nil {
		return unavailable("dead letter", err)
	}
	switch status(res) {
	case "LOST":
		return jobstore.ErrLeaseLost
	case "EXISTS":
		return fmt.Errorf("jobstore/redis: dead letter: %w: %w", jobstore.ErrTransactionFailed, jobstore.ErrJobAlreadyExists)
	}
	return nil
}

// RequeueDLQ moves an entry back to the live queue as a waiting record.
func (s *Store) RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	jID := jobID.String()
	res, err := s.run(ctx, requeueScript, s.keys.job(jID),
		jID, stamp(scheduledAt), millis(scheduledAt),
	)
	if err != nil {
		return nil, unavailable("requeue", err)
	}
	switch status(res) {
	case "NOTFOUND":
		return nil, jobstore.ErrDLQNotFound
	case "EXISTS":
		return nil, fmt.Errorf("jobstore/redis: requeue: %w: %w", jobstore.ErrTransactionFailed, jobstore.ErrJobAlreadyExists)
	}

	m, err := flatHash(res)
	if err != nil {
		return nil, err
	}
	return mapToRecord(jID, m)
}

// GetDLQ retrieves an entry by job ID.
func (s *Store) GetDLQ(ctx context.Context, jobID id.JobID) (*dlq.Entry, error) {
	jID := jobID.String()
	m, err := s.client.HGetAll(ctx, s.keys.dead(jID)).Result()
	if err != nil {
		return nil, unavailable("get dlq", err)
	}
	if len(m) == 0 {
		return nil, jobstore.ErrDLQNotFound
	}
	return mapToEntry(jID, m)
}

// ListDLQ returns entries, most recently failed first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	by := &goredis.ZRangeBy{Min: "-", Max: "+"}
	if opts.Limit > 0 || opts.Offset > 0 {
		by.Offset = int64(opts.Offset)
		by.Count = -1
		if opts.Limit > 0 {
			by.Count = int64(opts.Limit)
		}
	}

	members, err := s.client.ZRevRangeByLex(ctx, s.keys.deadIndex(opts.Queue), by).Result()
	if err != nil {
		return nil, unavailable("list dlq", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, s.keys.dead(memberID(m)))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, unavailable("load dlq", err)
		}
	}

	entries := make([]*dlq.Entry, 0, len(members))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		e, err := mapToEntry(memberID(members[i]), m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountDLQ returns the number of entries in queue, or in all queues.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.keys.deadIndex(queue)).Result()
	if err != nil {
		return 0, unavailable("count dlq", err)
	}
	return n, nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.run(ctx, purgeScript, s.keys.deadIndex(""), stamp(before))
	if err != nil {
		return 0, unavailable("purge dlq", err)
	}
	n, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("jobstore/redis: unexpected purge reply %T", res)
	}
	return n, nil
}
