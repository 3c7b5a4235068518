// Package job defines the job record, the live-queue store contract, typed
// definitions and the handler registry.
//
// # Record
//
// A [Record] is one queued-or-leased job. Its lifecycle is:
//
//	enqueue → waiting (RetryCount = 0)
//	waiting → leased (checkout, RetryCount += 1)
//	leased  → removed (complete)
//	leased  → waiting (fail, ScheduledAt unchanged)
//	leased  → dead-letter store (dead-letter)
//	waiting → removed (cancel, unschedule)
//
// State is derived from LeasedAt and never stored.
//
// # Defining a Job
//
//	var SendEmail = job.NewDefinition("send_email",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(in.To, in.Subject, in.Body)
//	    },
//	    job.WithMaxRetries(5),
//	)
//
//	job.RegisterDefinition(registry, SendEmail)
//
// Return [Permanent] from a handler to skip the remaining retry budget.
package job
