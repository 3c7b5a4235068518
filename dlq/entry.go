package dlq

import (
	"slices"
	"time"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Entry is a job moved out of the live queue after it failed permanently.
// It keeps the job's ID, so an ID is never in the live queue and the
// dead-letter store at the same time.
type Entry struct {
	ID          id.JobID  `json:"id"`
	Queue       string    `json:"queue"`
	Type        string    `json:"job_type"`
	Payload     []byte    `json:"payload"`
	RetryCount  int       `json:"retry_count"`
	Priority    int       `json:"priority"`
	ScheduledAt time.Time `json:"scheduled_at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Reason      string    `json:"reason"`
	FailedAt    time.Time `json:"failed_at"`
}

// NewEntry builds the dead-letter entry for a live record.
func NewEntry(r *job.Record, reason string, failedAt time.Time) *Entry {
	return &Entry{
		ID:          r.ID,
		Queue:       r.Queue,
		Type:        r.Type,
		Payload:     job.PayloadBytes(r.Payload),
		RetryCount:  r.RetryCount,
		Priority:    r.Priority,
		ScheduledAt: r.ScheduledAt,
		EnqueuedAt:  r.EnqueuedAt,
		Reason:      reason,
		FailedAt:    failedAt,
	}
}

// Requeued returns the waiting live record that replaces e on requeue:
// same ID, type, payload and priority, with a fresh retry budget.
func (e *Entry) Requeued(scheduledAt time.Time) *job.Record {
	return &job.Record{
		ID:          e.ID,
		Queue:       e.Queue,
		Type:        e.Type,
		Payload:     job.PayloadBytes(e.Payload),
		Priority:    e.Priority,
		ScheduledAt: scheduledAt,
		EnqueuedAt:  e.EnqueuedAt,
	}
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}
