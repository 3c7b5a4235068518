package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobLeased       = "job.leased"
	ActionJobCompleted    = "job.completed"
	ActionJobFailed       = "job.failed"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionJobCancelled    = "job.cancelled"
	ActionJobUnscheduled  = "job.unscheduled"
	ActionLeasesReaped    = "queue.leases_reaped"
)

// Audit event categories group related actions.
const (
	CategoryJob   = "jobstore.job"
	CategoryQueue = "jobstore.queue"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceQueue = "queue"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobLeased,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobDeadLettered,
		ActionJobCancelled,
		ActionJobUnscheduled,
		ActionLeasesReaped,
	}
}
