package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobEnqueued     = (*Extension)(nil)
	_ ext.JobLeased       = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobFailed       = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.JobCancelled    = (*Extension)(nil)
	_ ext.JobUnscheduled  = (*Extension)(nil)
	_ ext.LeasesReaped    = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder returns a Recorder that writes each event as one log line
// at a level matching its severity.
func SlogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges queue lifecycle events to an audit trail.
type Extension struct {
	recorder    Recorder
	enabled     map[string]bool // nil = all enabled
	queues      map[string]bool // nil = all queues
	minSeverity int
	logger      *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, r *job.Record) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, r.ID.String(), CategoryJob, "",
		"job_type", r.Type,
		"queue", r.Queue,
		"priority", r.Priority,
		"scheduled_at", r.ScheduledAt.Format(time.RFC3339Nano),
	)
}

// OnJobLeased implements ext.JobLeased.
func (e *Extension) OnJobLeased(ctx context.Context, r *job.Record) error {
	return e.record(ctx, ActionJobLeased, SeverityInfo, OutcomeSuccess,
		ResourceJob, r.ID.String(), CategoryJob, "",
		"job_type", r.Type,
		"queue", r.Queue,
		"retry_count", r.RetryCount,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, r.ID.String(), CategoryJob, "",
		"job_type", r.Type,
		"queue", r.Queue,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, r *job.Record) error {
	return e.record(ctx, ActionJobFailed, SeverityWarning, OutcomeFailure,
		ResourceJob, r.ID.String(), CategoryJob, "",
		"job_type", r.Type,
		"queue", r.Queue,
		"retry_count", r.RetryCount,
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, r *job.Record, reason string) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceJob, r.ID.String(), CategoryJob, reason,
		"job_type", r.Type,
		"queue", r.Queue,
		"retry_count", r.RetryCount,
	)
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, jobID id.JobID) error {
	return e.record(ctx, ActionJobCancelled, SeverityInfo, OutcomeSuccess,
		ResourceJob, jobID.String(), CategoryJob, "",
	)
}

// OnJobUnscheduled implements ext.JobUnscheduled.
func (e *Extension) OnJobUnscheduled(ctx context.Context, r *job.Record) error {
	return e.record(ctx, ActionJobUnscheduled, SeverityInfo, OutcomeSuccess,
		ResourceJob, r.ID.String(), CategoryJob, "",
		"job_type", r.Type,
		"queue", r.Queue,
	)
}

// ── Queue hooks ─────────────────────────────────────

// OnLeasesReaped implements ext.LeasesReaped.
func (e *Extension) OnLeasesReaped(ctx context.Context, queue string, count int64) error {
	return e.record(ctx, ActionLeasesReaped, SeverityWarning, OutcomeSuccess,
		ResourceQueue, queue, CategoryQueue, "",
		"count", count,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// kvPairs are added to Metadata. Recorder errors are logged, not returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if severityRank(severity) < e.minSeverity {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	if e.queues != nil {
		queue, _ := meta["queue"].(string)
		if resource == ResourceQueue {
			queue = resourceID
		}
		if queue != "" && !e.queues[queue] {
			return nil
		}
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
