// Package engine is the application-level entry point.
//
//	s, _ := postgres.New(ctx, os.Getenv("DATABASE_URL"))
//	_ = s.Migrate(ctx)
//
//	eng, err := engine.New(s,
//	    engine.WithConfig(jobstore.Config{Queue: "emails", Concurrency: 20, PollInterval: time.Second}),
//	    engine.WithExtension(auditExt),
//	    engine.WithRateLimit(rate.NewLimiter(100, 10)),
//	)
//
// # Registering work
//
//	var SendEmail = job.NewDefinition("send-email", sendEmail, job.WithMaxRetries(5))
//	engine.Register(eng, SendEmail)
//
// # Enqueuing
//
//	jobID, _ := engine.Enqueue(ctx, eng, SendEmail, EmailInput{To: "user@example.com"})
//	engine.Enqueue(ctx, eng, SendEmail, in, job.WithDelay(5*time.Minute), job.WithPriority(10))
//
//	// Take it back before it runs.
//	in, err := engine.Unschedule(ctx, eng, SendEmail, jobID)
//
// # Running
//
//	_ = eng.Start(ctx)
//	defer eng.Stop(shutdownCtx)
//
// The default middleware stack is recover, tracing, metrics, logging and
// the per-type timeout; [WithMiddleware] appends to it. The observability
// metrics extension is always registered.
package engine
