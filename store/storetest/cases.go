package storetest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/queue"
)

const (
	typeEmail  = "send-email"
	typeReport = "build-report"
)

var emailOnly = []string{typeEmail}

func mustSchedule(t *testing.T, q *queue.Queue, jobType string, payload []byte, at time.Time, prio int) id.JobID {
	t.Helper()
	jobID, err := q.Schedule(context.Background(), jobType, payload, at, prio)
	if err != nil {
		t.Fatalf("Schedule(%s): %v", jobType, err)
	}
	return jobID
}

func mustCheckout(t *testing.T, q *queue.Queue, types []string, now time.Time) *queue.Lease {
	t.Helper()
	l, err := q.Checkout(context.Background(), types, now)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if l == nil {
		t.Fatal("Checkout: expected a lease, got none")
	}
	return l
}

func expectEmpty(t *testing.T, q *queue.Queue, types []string, now time.Time) {
	t.Helper()
	l, err := q.Checkout(context.Background(), types, now)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if l != nil {
		t.Fatalf("Checkout: expected no lease, got job %s (priority %d)", l.ID(), l.Priority())
	}
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

func (h *harness) testEnqueue(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	payload := []byte(`{"to":"alice@example.com"}`)
	at := base.Add(time.Hour)
	jobID := mustSchedule(t, q, typeEmail, payload, at, 7)

	if jobID.Prefix() != id.PrefixJob {
		t.Errorf("prefix = %q, want %q", jobID.Prefix(), id.PrefixJob)
	}

	got, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != jobID.String() {
		t.Errorf("ID = %s, want %s", got.ID, jobID)
	}
	if got.Queue != q.Name() {
		t.Errorf("Queue = %q, want %q", got.Queue, q.Name())
	}
	if got.Type != typeEmail {
		t.Errorf("Type = %q, want %q", got.Type, typeEmail)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, payload)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", got.RetryCount)
	}
	if got.Priority != 7 {
		t.Errorf("Priority = %d, want 7", got.Priority)
	}
	if !got.ScheduledAt.Equal(at) {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, at)
	}
	if !got.EnqueuedAt.Equal(base) {
		t.Errorf("EnqueuedAt = %v, want %v", got.EnqueuedAt, base)
	}
	if got.LeasedAt != nil {
		t.Errorf("LeasedAt = %v, want nil", got.LeasedAt)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("GetJob(unknown): expected ErrJobNotFound, got %v", err)
	}
}

func (h *harness) testEnqueueDuplicateID(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	r := &job.Record{
		ID:          id.NewJobID(),
		Queue:       q.Name(),
		Type:        typeEmail,
		ScheduledAt: base,
		EnqueuedAt:  base,
	}
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.InsertJob(ctx, r); !errors.Is(err, jobstore.ErrJobAlreadyExists) {
		t.Fatalf("second InsertJob: expected ErrJobAlreadyExists, got %v", err)
	}
}

func (h *harness) testEmptyPayload(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
	}

	for _, tt := range tests {
		waitingID := mustSchedule(t, q, typeReport, tt.payload, base.Add(time.Hour), 0)
		got, err := q.Unschedule(ctx, typeReport, waitingID)
		if err != nil {
			t.Fatalf("%s: Unschedule: %v", tt.name, err)
		}
		if len(got) != 0 {
			t.Errorf("%s: unscheduled payload = %q, want empty", tt.name, got)
		}

		jobID := mustSchedule(t, q, typeEmail, tt.payload, base, 0)
		l := mustCheckout(t, q, emailOnly, base)
		if l.ID().String() != jobID.String() {
			t.Fatalf("%s: checked out %s, want %s", tt.name, l.ID(), jobID)
		}
		if len(l.Payload()) != 0 {
			t.Errorf("%s: leased payload = %q, want empty", tt.name, l.Payload())
		}
		if err := l.DeadLetter(ctx, "empty"); err != nil {
			t.Fatalf("%s: DeadLetter: %v", tt.name, err)
		}

		r, err := s.RequeueDLQ(ctx, jobID, base)
		if err != nil {
			t.Fatalf("%s: RequeueDLQ: %v", tt.name, err)
		}
		if len(r.Payload) != 0 {
			t.Errorf("%s: requeued payload = %q, want empty", tt.name, r.Payload)
		}
		l = mustCheckout(t, q, emailOnly, base)
		if err := l.Complete(ctx); err != nil {
			t.Fatalf("%s: Complete: %v", tt.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Checkout
// ──────────────────────────────────────────────────

func (h *harness) testCheckoutEmpty(t *testing.T) {
	_, q, _ := h.setup(t)
	expectEmpty(t, q, emailOnly, base)
}

func (h *harness) testCheckoutNoTypes(t *testing.T) {
	_, q, _ := h.setup(t)
	mustSchedule(t, q, typeEmail, nil, base, 0)

	expectEmpty(t, q, nil, base)
	expectEmpty(t, q, []string{}, base)
}

func (h *harness) testCheckoutTypeFilter(t *testing.T) {
	_, q, _ := h.setup(t)
	reportID := mustSchedule(t, q, typeReport, nil, base, 9)
	emailID := mustSchedule(t, q, typeEmail, nil, base, 1)

	l := mustCheckout(t, q, emailOnly, base)
	if l.ID().String() != emailID.String() {
		t.Fatalf("leased %s, want %s", l.ID(), emailID)
	}
	expectEmpty(t, q, emailOnly, base)

	l = mustCheckout(t, q, []string{typeEmail, typeReport}, base)
	if l.ID().String() != reportID.String() {
		t.Fatalf("leased %s, want %s", l.ID(), reportID)
	}
}

func (h *harness) testCheckoutQueueIsolation(t *testing.T) {
	s, q, clk := h.setup(t)
	other := queue.New(s, queue.WithName(q.Name()+"-other"), queue.WithClock(clk.Now))

	mustSchedule(t, other, typeEmail, nil, base, 0)
	expectEmpty(t, q, emailOnly, base)

	l := mustCheckout(t, other, emailOnly, base)
	if l.Queue() != other.Name() {
		t.Errorf("Queue() = %q, want %q", l.Queue(), other.Name())
	}
}

func (h *harness) testAtMostOneLease(t *testing.T) {
	_, q, _ := h.setup(t)
	mustSchedule(t, q, typeEmail, []byte("x"), base, 0)

	const workers = 16
	var (
		wg     sync.WaitGroup
		leases atomic.Int32
		start  = make(chan struct{})
		errs   = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := q.Checkout(context.Background(), emailOnly, base)
			if err != nil {
				errs <- err
				return
			}
			if l != nil {
				leases.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Checkout: %v", err)
	}
	if got := leases.Load(); got != 1 {
		t.Fatalf("leases granted = %d, want exactly 1", got)
	}
}

func (h *harness) testConcurrentCheckoutDistinctJobs(t *testing.T) {
	_, q, _ := h.setup(t)

	const jobs = 10
	for range jobs {
		mustSchedule(t, q, typeEmail, nil, base, 0)
	}

	const workers = 8
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				l, err := q.Checkout(context.Background(), emailOnly, base)
				if err != nil {
					t.Errorf("Checkout: %v", err)
					return
				}
				if l == nil {
					return
				}
				mu.Lock()
				seen[l.ID().String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("leased %d distinct jobs, want %d", len(seen), jobs)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s leased %d times", jobID, n)
		}
	}
}

func (h *harness) testPriorityOrder(t *testing.T) {
	_, q, _ := h.setup(t)
	for _, p := range []int{5, 1, 9} {
		mustSchedule(t, q, typeEmail, nil, base, p)
	}

	for _, want := range []int{9, 5, 1} {
		l := mustCheckout(t, q, emailOnly, base)
		if l.Priority() != want {
			t.Fatalf("Priority() = %d, want %d", l.Priority(), want)
		}
	}
	expectEmpty(t, q, emailOnly, base)
}

// testPriorityOverBacklog schedules a large low-priority backlog ahead of
// one high-priority job; the high-priority job must still come out first.
func (h *harness) testPriorityOverBacklog(t *testing.T) {
	_, q, _ := h.setup(t)
	const backlog = 600

	for range backlog {
		mustSchedule(t, q, typeEmail, nil, base, 0)
	}
	urgent := mustSchedule(t, q, typeEmail, nil, base.Add(time.Second), 9)

	now := base.Add(time.Hour)
	l := mustCheckout(t, q, emailOnly, now)
	if l.ID().String() != urgent.String() {
		t.Fatalf("checked out %s (priority %d), want %s (priority 9)", l.ID(), l.Priority(), urgent)
	}
	if l := mustCheckout(t, q, emailOnly, now); l.Priority() != 0 {
		t.Errorf("second checkout priority = %d, want 0", l.Priority())
	}
}

func (h *harness) testFIFOWithinPriority(t *testing.T) {
	_, q, _ := h.setup(t)

	var ids []id.JobID
	for range 3 {
		ids = append(ids, mustSchedule(t, q, typeEmail, nil, base, 3))
	}

	now := base.Add(time.Minute)
	for i, want := range ids {
		l := mustCheckout(t, q, emailOnly, now)
		if l.ID().String() != want.String() {
			t.Fatalf("checkout %d: got %s, want %s", i, l.ID(), want)
		}
	}
}

func (h *harness) testSchedulingGate(t *testing.T) {
	_, q, _ := h.setup(t)
	at := base.Add(time.Hour)
	jobID := mustSchedule(t, q, typeEmail, nil, at, 0)

	expectEmpty(t, q, emailOnly, base)
	expectEmpty(t, q, emailOnly, at.Add(-time.Second))

	l := mustCheckout(t, q, emailOnly, at)
	if l.ID().String() != jobID.String() {
		t.Fatalf("leased %s, want %s", l.ID(), jobID)
	}
}

func (h *harness) testRetryCountMonotonic(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()
	jobID := mustSchedule(t, q, typeEmail, nil, base, 0)

	for attempt := 1; attempt <= 3; attempt++ {
		now := base.Add(time.Duration(attempt) * time.Minute)
		l := mustCheckout(t, q, emailOnly, now)
		if l.RetryCount() != attempt {
			t.Fatalf("attempt %d: RetryCount() = %d", attempt, l.RetryCount())
		}
		if !l.LeasedAt().Equal(now) {
			t.Errorf("attempt %d: LeasedAt() = %v, want %v", attempt, l.LeasedAt(), now)
		}
		if err := l.Fail(ctx); err != nil {
			t.Fatalf("attempt %d: Fail: %v", attempt, err)
		}

		got, err := s.GetJob(ctx, jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.RetryCount != attempt {
			t.Errorf("stored RetryCount = %d, want %d", got.RetryCount, attempt)
		}
		if got.LeasedAt != nil {
			t.Errorf("stored LeasedAt = %v after Fail, want nil", got.LeasedAt)
		}
		if !got.ScheduledAt.Equal(base) {
			t.Errorf("ScheduledAt changed to %v after Fail", got.ScheduledAt)
		}
	}
}

// ──────────────────────────────────────────────────
// Lease resolution
// ──────────────────────────────────────────────────

func (h *harness) testCompleteRemoves(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()
	jobID := mustSchedule(t, q, typeEmail, nil, base, 0)

	l := mustCheckout(t, q, emailOnly, base)
	if err := l.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !l.Resolved() {
		t.Error("Resolved() = false after Complete")
	}

	if _, err := s.GetJob(ctx, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("GetJob after Complete: expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.GetDLQ(ctx, jobID); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("GetDLQ after Complete: expected ErrDLQNotFound, got %v", err)
	}
	expectEmpty(t, q, emailOnly, base.Add(time.Hour))
}

func (h *harness) testLeaseResolvedOnce(t *testing.T) {
	_, q, _ := h.setup(t)
	ctx := context.Background()
	mustSchedule(t, q, typeEmail, nil, base, 0)

	l := mustCheckout(t, q, emailOnly, base)
	if err := l.Fail(ctx); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if err := l.Complete(ctx); !errors.Is(err, jobstore.ErrLeaseResolved) {
		t.Errorf("Complete after Fail: expected ErrLeaseResolved, got %v", err)
	}
	if err := l.Fail(ctx); !errors.Is(err, jobstore.ErrLeaseResolved) {
		t.Errorf("second Fail: expected ErrLeaseResolved, got %v", err)
	}
	if err := l.DeadLetter(ctx, "late"); !errors.Is(err, jobstore.ErrLeaseResolved) {
		t.Errorf("DeadLetter after Fail: expected ErrLeaseResolved, got %v", err)
	}

	// The job went back to waiting and can be leased again.
	l2 := mustCheckout(t, q, emailOnly, base.Add(time.Second))
	if l2.RetryCount() != 2 {
		t.Errorf("RetryCount() = %d, want 2", l2.RetryCount())
	}
}

func (h *harness) testDeadLetterMovesJob(t *testing.T) {
	s, q, clk := h.setup(t)
	ctx := context.Background()

	payload := []byte(`{"n":1}`)
	at := base.Add(-time.Hour)
	jobID := mustSchedule(t, q, typeEmail, payload, at, 4)

	l := mustCheckout(t, q, emailOnly, base)
	failedAt := base.Add(10 * time.Minute)
	clk.Set(failedAt)

	if err := l.DeadLetter(ctx, "smtp: 550 mailbox unavailable"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	if _, err := s.GetJob(ctx, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("GetJob after DeadLetter: expected ErrJobNotFound, got %v", err)
	}
	expectEmpty(t, q, emailOnly, base.Add(time.Hour))

	e, err := s.GetDLQ(ctx, jobID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if e.ID.String() != jobID.String() {
		t.Errorf("entry ID = %s, want %s", e.ID, jobID)
	}
	if e.Queue != q.Name() || e.Type != typeEmail {
		t.Errorf("entry queue/type = %q/%q", e.Queue, e.Type)
	}
	if !bytes.Equal(e.Payload, payload) {
		t.Errorf("entry Payload = %q, want %q", e.Payload, payload)
	}
	if e.RetryCount != 1 {
		t.Errorf("entry RetryCount = %d, want 1", e.RetryCount)
	}
	if e.Priority != 4 {
		t.Errorf("entry Priority = %d, want 4", e.Priority)
	}
	if !e.ScheduledAt.Equal(at) {
		t.Errorf("entry ScheduledAt = %v, want %v", e.ScheduledAt, at)
	}
	if !e.EnqueuedAt.Equal(base) {
		t.Errorf("entry EnqueuedAt = %v, want %v", e.EnqueuedAt, base)
	}
	if e.Reason != "smtp: 550 mailbox unavailable" {
		t.Errorf("entry Reason = %q", e.Reason)
	}
	if !e.FailedAt.Equal(failedAt) {
		t.Errorf("entry FailedAt = %v, want %v", e.FailedAt, failedAt)
	}
}

func (h *harness) testDeadLetterAbortKeepsJob(t *testing.T) {
	if h.cfg.seed == nil {
		t.Skip("backend has no dead-letter seeder")
	}
	s, q, _ := h.setup(t)
	ctx := context.Background()
	jobID := mustSchedule(t, q, typeEmail, []byte("keep"), base, 0)

	l := mustCheckout(t, q, emailOnly, base)

	conflict := dlq.NewEntry(l.Record(), "pre-existing", base)
	if err := h.cfg.seed(ctx, s, conflict); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := l.DeadLetter(ctx, "boom")
	if !errors.Is(err, jobstore.ErrTransactionFailed) {
		t.Fatalf("DeadLetter: expected ErrTransactionFailed, got %v", err)
	}
	if l.Resolved() {
		t.Error("lease resolved after aborted dead-letter")
	}

	got, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob after abort: %v", err)
	}
	if got.LeasedAt == nil || !got.LeasedAt.Equal(l.LeasedAt()) {
		t.Errorf("LeasedAt = %v, want %v", got.LeasedAt, l.LeasedAt())
	}
	if !bytes.Equal(got.Payload, []byte("keep")) {
		t.Errorf("Payload = %q", got.Payload)
	}

	e, err := s.GetDLQ(ctx, jobID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if e.Reason != "pre-existing" {
		t.Errorf("seeded entry overwritten: Reason = %q", e.Reason)
	}

	// The lease is still usable.
	if err := l.Complete(ctx); err != nil {
		t.Fatalf("Complete after abort: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Cancel / Unschedule
// ──────────────────────────────────────────────────

func (h *harness) testCancel(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	waiting := mustSchedule(t, q, typeEmail, nil, base.Add(time.Hour), 0)
	if err := q.Cancel(ctx, waiting); err != nil {
		t.Fatalf("Cancel(waiting): %v", err)
	}
	if _, err := s.GetJob(ctx, waiting); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("GetJob after Cancel: expected ErrJobNotFound, got %v", err)
	}
	if err := q.Cancel(ctx, waiting); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("second Cancel: expected ErrJobNotFound, got %v", err)
	}

	if err := q.Cancel(ctx, id.NewJobID()); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("Cancel(unknown): expected ErrJobNotFound, got %v", err)
	}

	leasedID := mustSchedule(t, q, typeEmail, nil, base, 0)
	l := mustCheckout(t, q, emailOnly, base)
	if err := q.Cancel(ctx, leasedID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("Cancel(leased): expected ErrJobNotFound, got %v", err)
	}
	if err := l.Complete(ctx); err != nil {
		t.Errorf("Complete after refused Cancel: %v", err)
	}
}

func (h *harness) testCancelCheckoutRace(t *testing.T) {
	_, q, _ := h.setup(t)

	for i := range 20 {
		jobID := mustSchedule(t, q, typeEmail, nil, base, 0)

		var (
			wg        sync.WaitGroup
			cancelErr error
			lease     *queue.Lease
			leaseErr  error
			start     = make(chan struct{})
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			cancelErr = q.Cancel(context.Background(), jobID)
		}()
		go func() {
			defer wg.Done()
			<-start
			lease, leaseErr = q.Checkout(context.Background(), emailOnly, base)
		}()
		close(start)
		wg.Wait()

		if leaseErr != nil {
			t.Fatalf("round %d: Checkout: %v", i, leaseErr)
		}
		if cancelErr != nil && !errors.Is(cancelErr, jobstore.ErrJobNotFound) {
			t.Fatalf("round %d: Cancel: %v", i, cancelErr)
		}

		cancelled := cancelErr == nil
		leased := lease != nil
		if cancelled == leased {
			t.Fatalf("round %d: cancelled=%v leased=%v, want exactly one", i, cancelled, leased)
		}
		if leased {
			if err := lease.Complete(context.Background()); err != nil {
				t.Fatalf("round %d: Complete: %v", i, err)
			}
		}
	}
}

func (h *harness) testUnschedule(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	payload := []byte(`{"report":"q3"}`)
	jobID := mustSchedule(t, q, typeReport, payload, base.Add(time.Hour), 0)

	if _, err := q.Unschedule(ctx, typeEmail, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Fatalf("Unschedule(wrong type): expected ErrJobNotFound, got %v", err)
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		t.Fatalf("job removed by mismatched Unschedule: %v", err)
	}

	got, err := q.Unschedule(ctx, typeReport, jobID)
	if err != nil {
		t.Fatalf("Unschedule: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}

	if _, err := q.Unschedule(ctx, typeReport, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("second Unschedule: expected ErrJobNotFound, got %v", err)
	}

	leasedID := mustSchedule(t, q, typeReport, payload, base, 0)
	mustCheckout(t, q, []string{typeReport}, base)
	if _, err := q.Unschedule(ctx, typeReport, leasedID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("Unschedule(leased): expected ErrJobNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Reaper
// ──────────────────────────────────────────────────

func (h *harness) testReapExpiredLeases(t *testing.T) {
	s, q, clk := h.setup(t)
	ctx := context.Background()

	staleID := mustSchedule(t, q, typeEmail, nil, base, 5)
	freshID := mustSchedule(t, q, typeEmail, nil, base, 1)

	stale := mustCheckout(t, q, emailOnly, base)
	if stale.ID().String() != staleID.String() {
		t.Fatalf("leased %s, want %s", stale.ID(), staleID)
	}
	fresh := mustCheckout(t, q, emailOnly, base.Add(9*time.Minute))
	if fresh.ID().String() != freshID.String() {
		t.Fatalf("leased %s, want %s", fresh.ID(), freshID)
	}

	clk.Set(base.Add(10 * time.Minute))
	n, err := q.ReapExpired(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("ReapExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}

	got, err := s.GetJob(ctx, staleID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.LeasedAt != nil {
		t.Errorf("reaped job still leased at %v", got.LeasedAt)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d after reap, want 1", got.RetryCount)
	}

	// The stale holder is fenced out, even after the job is leased again.
	again := mustCheckout(t, q, emailOnly, base.Add(11*time.Minute))
	if again.ID().String() != staleID.String() {
		t.Fatalf("re-leased %s, want %s", again.ID(), staleID)
	}
	if again.RetryCount() != 2 {
		t.Errorf("RetryCount() = %d, want 2", again.RetryCount())
	}
	if err := stale.Complete(ctx); !errors.Is(err, jobstore.ErrLeaseLost) {
		t.Fatalf("stale Complete: expected ErrLeaseLost, got %v", err)
	}
	if !stale.Resolved() {
		t.Error("lost lease should be resolved")
	}
	if err := again.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := fresh.Complete(ctx); err != nil {
		t.Fatalf("fresh Complete: %v", err)
	}

	if n, err := q.ReapExpired(ctx, 0); err != nil || n != 0 {
		t.Errorf("ReapExpired(0) = %d, %v; want 0, nil", n, err)
	}
}

// ──────────────────────────────────────────────────
// Dead-letter store
// ──────────────────────────────────────────────────

func deadLetter(t *testing.T, q *queue.Queue, jobType string, now time.Time, reason string) id.JobID {
	t.Helper()
	mustSchedule(t, q, jobType, []byte(reason), now, 0)
	l := mustCheckout(t, q, []string{jobType}, now)
	if err := l.DeadLetter(context.Background(), reason); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	return l.ID()
}

func (h *harness) testRequeueDLQ(t *testing.T) {
	s, q, _ := h.setup(t)
	ctx := context.Background()

	jobID := deadLetter(t, q, typeEmail, base, "bounced")

	at := base.Add(2 * time.Hour)
	r, err := s.RequeueDLQ(ctx, jobID, at)
	if err != nil {
		t.Fatalf("RequeueDLQ: %v", err)
	}
	if r.ID.String() != jobID.String() {
		t.Errorf("requeued ID = %s, want %s", r.ID, jobID)
	}
	if r.RetryCount != 0 {
		t.Errorf("requeued RetryCount = %d, want 0", r.RetryCount)
	}

	if _, err := s.GetDLQ(ctx, jobID); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("GetDLQ after requeue: expected ErrDLQNotFound, got %v", err)
	}

	expectEmpty(t, q, emailOnly, at.Add(-time.Second))
	l := mustCheckout(t, q, emailOnly, at)
	if l.ID().String() != jobID.String() {
		t.Fatalf("leased %s, want %s", l.ID(), jobID)
	}
	if l.RetryCount() != 1 {
		t.Errorf("RetryCount() = %d, want 1", l.RetryCount())
	}
	if string(l.Payload()) != "bounced" {
		t.Errorf("Payload() = %q", l.Payload())
	}

	if _, err := s.RequeueDLQ(ctx, id.NewJobID(), at); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("RequeueDLQ(unknown): expected ErrDLQNotFound, got %v", err)
	}
}

func (h *harness) testPurgeDLQ(t *testing.T) {
	s, q, clk := h.setup(t)
	ctx := context.Background()

	// Far in the past so entries written by other subtests are never purged.
	old := time.Date(2001, time.March, 4, 0, 0, 0, 0, time.UTC)
	clk.Set(old)
	oldID := deadLetter(t, q, typeEmail, old, "old")

	clk.Set(base)
	newID := deadLetter(t, q, typeEmail, base, "new")

	n, err := s.PurgeDLQ(ctx, old.Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeDLQ: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := s.GetDLQ(ctx, oldID); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("old entry survived purge: %v", err)
	}
	if _, err := s.GetDLQ(ctx, newID); err != nil {
		t.Errorf("new entry purged: %v", err)
	}
}

func (h *harness) testListAndCount(t *testing.T) {
	s, q, clk := h.setup(t)
	ctx := context.Background()

	var waiting []id.JobID
	for range 3 {
		waiting = append(waiting, mustSchedule(t, q, typeReport, nil, base.Add(time.Hour), 0))
	}
	mustSchedule(t, q, typeEmail, nil, base, 0)
	mustCheckout(t, q, emailOnly, base)

	clk.Set(base.Add(time.Minute))
	first := deadLetter(t, q, typeEmail, base, "first")
	clk.Set(base.Add(2 * time.Minute))
	second := deadLetter(t, q, typeEmail, base, "second")

	counts := []struct {
		state job.State
		want  int64
	}{
		{"", 4},
		{job.StateWaiting, 3},
		{job.StateLeased, 1},
	}
	for _, c := range counts {
		n, err := s.CountJobs(ctx, job.CountOpts{Queue: q.Name(), State: c.state})
		if err != nil {
			t.Fatalf("CountJobs(%q): %v", c.state, err)
		}
		if n != c.want {
			t.Errorf("CountJobs(%q) = %d, want %d", c.state, n, c.want)
		}
	}

	list, err := s.ListJobs(ctx, job.ListOpts{Queue: q.Name(), State: job.StateWaiting})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != len(waiting) {
		t.Fatalf("ListJobs returned %d, want %d", len(list), len(waiting))
	}
	for i, want := range waiting {
		if list[i].ID.String() != want.String() {
			t.Errorf("ListJobs[%d] = %s, want %s", i, list[i].ID, want)
		}
	}

	paged, err := s.ListJobs(ctx, job.ListOpts{Queue: q.Name(), State: job.StateWaiting, Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListJobs paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID.String() != waiting[1].String() {
		t.Errorf("paged ListJobs = %v, want [%s]", paged, waiting[1])
	}

	dn, err := s.CountDLQ(ctx, q.Name())
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if dn != 2 {
		t.Errorf("CountDLQ = %d, want 2", dn)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Queue: q.Name()})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListDLQ returned %d, want 2", len(entries))
	}
	if entries[0].ID.String() != second.String() || entries[1].ID.String() != first.String() {
		t.Errorf("ListDLQ order = [%s %s], want newest first [%s %s]",
			entries[0].ID, entries[1].ID, second, first)
	}
}
