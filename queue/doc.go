// Package queue is the client-facing side of the store: it enqueues jobs,
// checks them out under a lease and removes jobs that have not started.
//
//	q := queue.New(store, queue.WithName("emails"))
//
//	jobID, err := q.Schedule(ctx, "send-email", payload, time.Now(), 5)
//
//	lease, err := q.Checkout(ctx, []string{"send-email"}, time.Now())
//	if err == nil && lease != nil {
//	    if runErr := send(lease.Payload()); runErr != nil {
//	        err = lease.Fail(ctx)
//	    } else {
//	        err = lease.Complete(ctx)
//	    }
//	}
//
// A [Lease] is resolved exactly once, by Complete, Fail or DeadLetter.
// Queue holds no locks of its own; the backend decides which caller wins
// a checkout.
package queue
