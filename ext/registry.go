package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

func add[H any](list []entry[H], e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		list = append(list, entry[H]{name: e.Name(), hook: h})
	}
	return list
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Hooks are type-cached at registration, so emitting only walks the
// extensions that implement the hook. Register everything before the
// registry is shared between goroutines.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued     []entry[JobEnqueued]
	jobLeased       []entry[JobLeased]
	jobCompleted    []entry[JobCompleted]
	jobFailed       []entry[JobFailed]
	jobDeadLettered []entry[JobDeadLettered]
	jobCancelled    []entry[JobCancelled]
	jobUnscheduled  []entry[JobUnscheduled]
	leasesReaped    []entry[LeasesReaped]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	r.jobEnqueued = add(r.jobEnqueued, e)
	r.jobLeased = add(r.jobLeased, e)
	r.jobCompleted = add(r.jobCompleted, e)
	r.jobFailed = add(r.jobFailed, e)
	r.jobDeadLettered = add(r.jobDeadLettered, e)
	r.jobCancelled = add(r.jobCancelled, e)
	r.jobUnscheduled = add(r.jobUnscheduled, e)
	r.leasesReaped = add(r.leasesReaped, e)
	r.shutdown = add(r.shutdown, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEnqueued notifies JobEnqueued hooks.
func (r *Registry) EmitJobEnqueued(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobEnqueued {
		r.check("OnJobEnqueued", e.name, e.hook.OnJobEnqueued(ctx, rec))
	}
}

// EmitJobLeased notifies JobLeased hooks.
func (r *Registry) EmitJobLeased(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobLeased {
		r.check("OnJobLeased", e.name, e.hook.OnJobLeased(ctx, rec))
	}
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, rec *job.Record, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, rec, elapsed))
	}
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobFailed {
		r.check("OnJobFailed", e.name, e.hook.OnJobFailed(ctx, rec))
	}
}

// EmitJobDeadLettered notifies JobDeadLettered hooks.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, rec *job.Record, reason string) {
	for _, e := range r.jobDeadLettered {
		r.check("OnJobDeadLettered", e.name, e.hook.OnJobDeadLettered(ctx, rec, reason))
	}
}

// EmitJobCancelled notifies JobCancelled hooks.
func (r *Registry) EmitJobCancelled(ctx context.Context, jobID id.JobID) {
	for _, e := range r.jobCancelled {
		r.check("OnJobCancelled", e.name, e.hook.OnJobCancelled(ctx, jobID))
	}
}

// EmitJobUnscheduled notifies JobUnscheduled hooks.
func (r *Registry) EmitJobUnscheduled(ctx context.Context, rec *job.Record) {
	for _, e := range r.jobUnscheduled {
		r.check("OnJobUnscheduled", e.name, e.hook.OnJobUnscheduled(ctx, rec))
	}
}

// EmitLeasesReaped notifies LeasesReaped hooks.
func (r *Registry) EmitLeasesReaped(ctx context.Context, queue string, count int64) {
	for _, e := range r.leasesReaped {
		r.check("OnLeasesReaped", e.name, e.hook.OnLeasesReaped(ctx, queue, count))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a hook error. Hook errors never reach the caller.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
