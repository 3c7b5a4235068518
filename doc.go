// Package jobstore is the durable storage engine for a distributed job queue.
//
// It persists jobs, hands out at most one lease per job to competing
// workers, tracks retry counts, supports delayed and prioritized scheduling,
// and moves permanently failing jobs to a dead-letter store.
//
// # Quick Start
//
//	s := memory.New()
//	q := queue.New(s, queue.WithName("emails"))
//
//	jobID, err := q.Schedule(ctx, "send-email", payload, time.Now(), 5)
//
//	lease, err := q.Checkout(ctx, []string{"send-email"}, time.Now())
//	if lease != nil {
//	    err = lease.Complete(ctx)
//	}
//
// # Architecture
//
// Every backend implements job.Store and dlq.Store with its own atomic
// primitive: findAndModify on MongoDB, FOR UPDATE SKIP LOCKED on
// PostgreSQL, a single UPDATE ... RETURNING on SQLite and Lua scripts on
// Redis. The store is the only arbiter of which worker holds a job.
//
// Job IDs are TypeIDs: type-prefixed, K-sortable, UUIDv7-based identifiers.
package jobstore
