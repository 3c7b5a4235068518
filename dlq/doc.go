// Package dlq holds jobs that failed permanently.
//
// A job reaches the dead-letter store through Lease.DeadLetter, which moves
// the leased record in a single transaction. The entry keeps the job's ID,
// queue, type, payload, retry count, priority and both timestamps, and adds
// the failure reason and the time of the move.
//
// [Service] exposes the operator actions:
//
//	svc := dlq.NewService(store)
//
//	entries, _ := svc.List(ctx, dlq.ListOpts{Queue: "emails", Limit: 50})
//	rec, _ := svc.Replay(ctx, entries[0].ID) // back to the live queue
//	n, _ := svc.Purge(ctx, 30*24*time.Hour)
//
// Replay is the inverse move: the entry is deleted and a waiting record with
// the same ID and a zero retry count is inserted, atomically.
package dlq
