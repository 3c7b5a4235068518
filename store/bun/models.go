package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:jobstore_jobs"`

	ID          string     `bun:"id,pk"`
	Queue       string     `bun:"queue,notnull"`
	JobType     string     `bun:"job_type,notnull"`
	Payload     []byte     `bun:"payload,notnull,type:bytea"`
	RetryCount  int        `bun:"retry_count,notnull,default:0"`
	Priority    int        `bun:"priority,notnull,default:0"`
	ScheduledAt time.Time  `bun:"scheduled_at,notnull,type:timestamptz"`
	EnqueuedAt  time.Time  `bun:"enqueued_at,notnull,type:timestamptz"`
	LeasedAt    *time.Time `bun:"leased_at,type:timestamptz"`
}

func toJobModel(r *job.Record) *jobModel {
	return &jobModel{
		ID:          r.ID.String(),
		Queue:       r.Queue,
		JobType:     r.Type,
		Payload:     job.PayloadBytes(r.Payload),
		RetryCount:  r.RetryCount,
		Priority:    r.Priority,
		ScheduledAt: r.ScheduledAt,
		EnqueuedAt:  r.EnqueuedAt,
		LeasedAt:    r.LeasedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Record, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/bun: parse job id %q: %w", m.ID, err)
	}
	r := &job.Record{
		ID:          parsedID,
		Queue:       m.Queue,
		Type:        m.JobType,
		Payload:     m.Payload,
		RetryCount:  m.RetryCount,
		Priority:    m.Priority,
		ScheduledAt: m.ScheduledAt.UTC(),
		EnqueuedAt:  m.EnqueuedAt.UTC(),
	}
	if m.LeasedAt != nil {
		t := m.LeasedAt.UTC()
		r.LeasedAt = &t
	}
	return r, nil
}

func fromJobModels(models []jobModel) ([]*job.Record, error) {
	out := make([]*job.Record, 0, len(models))
	for i := range models {
		r, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ── Dead-letter model ─────────────────────────────────────────────

type deadModel struct {
	bun.BaseModel `bun:"table:jobstore_dead_jobs"`

	ID          string    `bun:"id,pk"`
	Queue       string    `bun:"queue,notnull"`
	JobType     string    `bun:"job_type,notnull"`
	Payload     []byte    `bun:"payload,notnull,type:bytea"`
	RetryCount  int       `bun:"retry_count,notnull"`
	Priority    int       `bun:"priority,notnull"`
	ScheduledAt time.Time `bun:"scheduled_at,notnull,type:timestamptz"`
	EnqueuedAt  time.Time `bun:"enqueued_at,notnull,type:timestamptz"`
	Reason      string    `bun:"reason,notnull"`
	FailedAt    time.Time `bun:"failed_at,notnull,type:timestamptz"`
}

func toDeadModel(e *dlq.Entry) *deadModel {
	return &deadModel{
		ID:          e.ID.String(),
		Queue:       e.Queue,
		JobType:     e.Type,
		Payload:     job.PayloadBytes(e.Payload),
		RetryCount:  e.RetryCount,
		Priority:    e.Priority,
		ScheduledAt: e.ScheduledAt,
		EnqueuedAt:  e.EnqueuedAt,
		Reason:      e.Reason,
		FailedAt:    e.FailedAt,
	}
}

func fromDeadModel(m *deadModel) (*dlq.Entry, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobstore/bun: parse dlq id %q: %w", m.ID, err)
	}
	return &dlq.Entry{
		ID:          parsedID,
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
