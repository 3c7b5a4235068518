package redis

import (
	"fmt"
	"strconv"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

func mapToRecord(jobID string, m map[string]string) (*job.Record, error) {
	parsedID, err := id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse job id %q: %w", jobID, err)
	}

	r := &job.Record{
		ID:      parsedID,
		Queue:   m["queue"],
		Type:    m["job_type"],
		Payload: []byte(m["payload"]),
	}
	if r.RetryCount, err = strconv.Atoi(m["retry_count"]); err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse retry_count: %w", err)
	}
	if r.Priority, err = strconv.Atoi(m["priority"]); err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse priority: %w", err)
	}
	if r.ScheduledAt, err = parseStamp(m["scheduled_at"]); err != nil {
		return nil, err
	}
	if r.EnqueuedAt, err = parseStamp(m["enqueued_at"]); err != nil {
		return nil, err
	}
	if v, ok := m["leased_at"]; ok {
		t, err := parseStamp(v)
		if err != nil {
			return nil, err
		}
		r.LeasedAt = &t
	}
	return r, nil
}

func mapToEntry(jobID string, m map[string]string) (*dlq.Entry, error) {
	parsedID, err := id.ParseJobID(jobID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse dlq id %q: %w", jobID, err)
	}

	e := &dlq.Entry{
		ID:      parsedID,
		Queue:   m["queue"],
		Type:    m["job_type"],
		Payload: []byte(m["payload"]),
		Reason:  m["reason"],
	}
	if e.RetryCount, err = strconv.Atoi(m["retry_count"]); err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse retry_count: %w", err)
	}
	if e.Priority, err = strconv.Atoi(m["priority"]); err != nil {
		return nil, fmt.Errorf("jobstore/redis: parse priority: %w", err)
	}
	if e.ScheduledAt, err = parseStamp(m["scheduled_at"]); err != nil {
		return nil, err
	}
	if e.EnqueuedAt, err = parseStamp(m["enqueued_at"]); err != nil {
		return nil, err
	}
	if e.FailedAt, err = parseStamp(m["failed_at"]); err != nil {
		return nil, err
	}
	return e, nil
}
