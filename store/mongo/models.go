package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// ── Job model ─────────────────────────────────────────────────────

// jobModel stores leased_at as an explicit null while waiting so the
// checkout filter can match on it.
type jobModel struct {
	ID          string     `bson:"_id"`
	Queue       string     `bson:"queue"`
	JobType     string     `bson:"job_type"`
	Payload     []byte     `bson:"payload"`
	RetryCount  int        `bson:"retry_count"`
	Priority    int        `bson:"priority"`
	ScheduledAt time.Time  `bson:"scheduled_at"`
	EnqueuedAt  time.Time  `bson:"enqueued_at"`
	LeasedAt    *time.Time `bson:"leased_at"`
}

func toJobModel(r *job.Record) *jobModel {
	return &jobModel{
		ID:          r.ID.String(),
		Queue:       r.Queue,
		JobType:     r.Type,
		Payload:     r.Payload,
		RetryCount:  r.RetryCount,
		Priority:    r.Priority,
		ScheduledAt: r.ScheduledAt,
		EnqueuedAt:  r.EnqueuedAt,
		LeasedAt:    r.LeasedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Record, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/mongo: parse job id %q: %w", m.ID, err)
	}
	return &job.Record{
		ID:          jobID,
		Queue:       m.Queue,
		Type:        m.JobType,
		Payload:     m.Payload,
		RetryCount:  m.RetryCount,
		Priority:    m.Priority,
		ScheduledAt: m.ScheduledAt.UTC(),
		EnqueuedAt:  m.EnqueuedAt.UTC(),
		LeasedAt:    utcPtr(m.LeasedAt),
	}, nil
}

// ── Dead-letter model ─────────────────────────────────────────────

type deadModel struct {
	ID          string    `bson:"_id"`
	Queue       string    `bson:"queue"`
	JobType     string    `bson:"job_type"`
	Payload     []byte    `bson:"payload"`
	RetryCount  int       `bson:"retry_count"`
	Priority    int       `bson:"priority"`
	ScheduledAt time.Time `bson:"scheduled_at"`
	EnqueuedAt  time.Time `bson:"enqueued_at"`
	Reason      string    `bson:"reason"`
	FailedAt    time.Time `bson:"failed_at"`
}

func toDeadModel(e *dlq.Entry) *deadModel {
	return &deadModel{
		ID:          e.ID.String(),
		Queue:       e.Queue,
		JobType:     e.Type,
		Payload:     e.Payload,
		RetryCount:  e.RetryCount,
		Priority:    e.Priority,
		ScheduledAt: e.ScheduledAt,
		EnqueuedAt:  e.EnqueuedAt,
		Reason:      e.Reason,
		FailedAt:    e.FailedAt,
	}
}

func fromDeadModel(m *deadModel) (*dlq.Entry, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/mongo: parse dlq id %q: %w", m.ID, err)
	}
	return &dlq.Entry{
		ID:          jobID,
		Queue:       m.Queue,
		Type:        m.JobType,
		Payload:     m.Payload,
		RetryCount:  m.RetryCount,
		Priority:    m.Priority,
		ScheduledAt: m.ScheduledAt.UTC(),
		EnqueuedAt:  m.EnqueuedAt.UTC(),
		Reason:      m.Reason,
		FailedAt:    m.FailedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
