// Package ext defines the extension system for jobstore.
//
// Extensions observe the job lifecycle without taking part in it. A hook
// error is logged and dropped; it never fails the store operation that
// triggered it.
//
//	type auditLog struct{}
//
//	func (a *auditLog) Name() string { return "audit" }
//
//	func (a *auditLog) OnJobDeadLettered(ctx context.Context, r *job.Record, reason string) error {
//	    return writeAudit(ctx, r.ID, reason)
//	}
//
// Hooks: [JobEnqueued], [JobLeased], [JobCompleted], [JobFailed],
// [JobDeadLettered], [JobCancelled], [JobUnscheduled], [LeasesReaped]
// and [Shutdown].
package ext
