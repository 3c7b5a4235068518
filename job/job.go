package job

import (
	"slices"
	"time"

	"github.com/xraph/jobstore/id"
)

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "default"

// State is derived from a record's lease field. It is never persisted.
type State string

const (
	// StateWaiting means the job is in the queue and not leased.
	StateWaiting State = "waiting"
	// StateLeased means a worker holds the job's lease.
	StateLeased State = "leased"
)

// Record is a job persisted in the live queue.
//
// A record with a nil LeasedAt is waiting and may be checked out once
// ScheduledAt has passed. RetryCount starts at zero and is incremented
// by exactly one on every successful checkout.
type Record struct {
	ID          id.JobID   `json:"id"`
	Queue       string     `json:"queue"`
	Type        string     `json:"job_type"`
	Payload     []byte     `json:"payload"`
	RetryCount  int        `json:"retry_count"`
	Priority    int        `json:"priority"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	LeasedAt    *time.Time `json:"leased_at,omitempty"`
}

// Leased reports whether a worker currently holds the job.
func (r *Record) Leased() bool { return r.LeasedAt != nil }

// State returns the derived lifecycle state.
func (r *Record) State() State {
	if r.Leased() {
		return StateLeased
	}
	return StateWaiting
}

// Eligible reports whether the record may be checked out from queue by a
// worker handling types at instant now.
func (r *Record) Eligible(queue string, types []string, now time.Time) bool {
	return !r.Leased() &&
		r.Queue == queue &&
		!r.ScheduledAt.After(now) &&
		slices.Contains(types, r.Type)
}

// Before reports whether r is checked out ahead of other:
// higher priority first, then earlier enqueue, then lower ID.
func (r *Record) Before(other *Record) bool {
	if r.Priority != other.Priority {
		return r.Priority > other.Priority
	}
	if !r.EnqueuedAt.Equal(other.EnqueuedAt) {
		return r.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return r.ID.Less(other.ID)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = slices.Clone(r.Payload)
	}
	if r.LeasedAt != nil {
		t := *r.LeasedAt
		c.LeasedAt = &t
	}
	return &c
}

// PayloadBytes returns a copy of p that is never nil. Payload columns are
// NOT NULL and SQL drivers bind a nil slice as NULL.
func PayloadBytes(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return slices.Clone(p)
}
