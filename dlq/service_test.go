package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/queue"
	"github.com/xraph/jobstore/store/memory"
)

var t0 = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)

func clock(t time.Time) func() time.Time { return func() time.Time { return t } }

// deadLetter enqueues a job at t0, leases it and dead-letters it at failedAt.
func deadLetter(t *testing.T, s *memory.Store, queueName, reason string, failedAt time.Time) id.JobID {
	t.Helper()
	ctx := context.Background()

	q := queue.New(s, queue.WithName(queueName), queue.WithClock(clock(t0)))
	jobID, err := q.Schedule(ctx, "send-email", []byte(`{"to":"alice@example.com"}`), time.Time{}, 3)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	l, err := q.Poll(ctx, []string{"send-email"})
	if err != nil || l == nil {
		t.Fatalf("Poll = %v, %v", l, err)
	}

	if err := s.DeadLetterJob(ctx, l.ID(), l.LeasedAt(), reason, failedAt); err != nil {
		t.Fatalf("DeadLetterJob: %v", err)
	}
	return jobID
}

func TestService_GetListCount(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := dlq.NewService(s)

	first := deadLetter(t, s, "emails", "smtp timeout", t0.Add(time.Minute))
	deadLetter(t, s, "emails", "bounced", t0.Add(2*time.Minute))
	deadLetter(t, s, "reports", "oom", t0.Add(3*time.Minute))

	entry, err := svc.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Reason != "smtp timeout" || entry.Queue != "emails" || entry.Type != "send-email" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.RetryCount != 1 || entry.Priority != 3 || !entry.EnqueuedAt.Equal(t0) {
		t.Errorf("entry kept retry_count=%d priority=%d enqueued_at=%v", entry.RetryCount, entry.Priority, entry.EnqueuedAt)
	}
	if string(entry.Payload) != `{"to":"alice@example.com"}` {
		t.Errorf("payload = %s", entry.Payload)
	}

	tests := []struct {
		queue string
		want  int64
	}{
		{"", 3},
		{"emails", 2},
		{"reports", 1},
		{"missing", 0},
	}
	for _, tt := range tests {
		n, err := svc.Count(ctx, tt.queue)
		if err != nil {
			t.Fatalf("Count(%q): %v", tt.queue, err)
		}
		if n != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.queue, n, tt.want)
		}
	}

	// Newest failure first.
	entries, err := svc.List(ctx, dlq.ListOpts{Queue: "emails"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Reason != "bounced" || entries[1].ID != first {
		t.Errorf("List order = %v", entries)
	}

	entries, err = svc.List(ctx, dlq.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "bounced" {
		t.Errorf("List page = %v", entries)
	}
}

func TestService_Replay(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	replayAt := t0.Add(time.Hour)
	svc := dlq.NewService(s, dlq.WithClock(clock(replayAt)))

	jobID := deadLetter(t, s, "emails", "smtp timeout", t0.Add(time.Minute))

	rec, err := svc.Replay(ctx, jobID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rec.ID != jobID {
		t.Errorf("replayed ID = %s, want %s", rec.ID, jobID)
	}
	if rec.RetryCount != 0 || rec.Leased() || !rec.ScheduledAt.Equal(replayAt) {
		t.Errorf("replayed record = %+v", rec)
	}
	if rec.Priority != 3 || rec.Type != "send-email" || rec.Queue != "emails" {
		t.Errorf("replayed record lost fields: %+v", rec)
	}

	if _, err := svc.Get(ctx, jobID); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("Get after replay error = %v, want ErrDLQNotFound", err)
	}
	live, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if live.RetryCount != 0 {
		t.Errorf("live retry_count = %d, want 0", live.RetryCount)
	}

	// The replayed job is checked out again by a poller of its queue.
	q := queue.New(s, queue.WithName("emails"), queue.WithClock(clock(replayAt)))
	l, err := q.Poll(ctx, []string{"send-email"})
	if err != nil || l == nil || l.ID() != jobID {
		t.Fatalf("Poll after replay = %v, %v", l, err)
	}
}

func TestService_Replay_NotFound(t *testing.T) {
	svc := dlq.NewService(memory.New())
	if _, err := svc.Replay(context.Background(), id.NewJobID()); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Fatalf("Replay error = %v, want ErrDLQNotFound", err)
	}
}

func TestService_Purge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := t0.Add(48 * time.Hour)
	svc := dlq.NewService(s, dlq.WithClock(clock(now)))

	old := deadLetter(t, s, "emails", "old", t0)
	recent := deadLetter(t, s, "emails", "recent", now.Add(-time.Hour))

	n, err := svc.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := svc.Get(ctx, old); !errors.Is(err, jobstore.ErrDLQNotFound) {
		t.Errorf("old entry still present: %v", err)
	}
	if _, err := svc.Get(ctx, recent); err != nil {
		t.Errorf("recent entry purged: %v", err)
	}
}
