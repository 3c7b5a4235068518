package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobEnqueued(context.Context, *job.Record) error {
	return e.record("OnJobEnqueued")
}

func (e *allHooksExt) OnJobLeased(context.Context, *job.Record) error {
	return e.record("OnJobLeased")
}

func (e *allHooksExt) OnJobCompleted(context.Context, *job.Record, time.Duration) error {
	return e.record("OnJobCompleted")
}

func (e *allHooksExt) OnJobFailed(context.Context, *job.Record) error {
	return e.record("OnJobFailed")
}

func (e *allHooksExt) OnJobDeadLettered(context.Context, *job.Record, string) error {
	return e.record("OnJobDeadLettered")
}

func (e *allHooksExt) OnJobCancelled(context.Context, id.JobID) error {
	return e.record("OnJobCancelled")
}

func (e *allHooksExt) OnJobUnscheduled(context.Context, *job.Record) error {
	return e.record("OnJobUnscheduled")
}

func (e *allHooksExt) OnLeasesReaped(context.Context, string, int64) error {
	return e.record("OnLeasesReaped")
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	return e.record("OnShutdown")
}

type enqueueOnlyExt struct {
	calls int
}

func (e *enqueueOnlyExt) Name() string { return "enqueue-only" }

func (e *enqueueOnlyExt) OnJobEnqueued(context.Context, *job.Record) error {
	e.calls++
	return nil
}

type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(context.Context, *job.Record) error {
	return errors.New("boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	rec := &job.Record{ID: id.NewJobID(), Type: "test-job"}

	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobLeased(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFailed(ctx, rec)
	r.EmitJobDeadLettered(ctx, rec, "boom")
	r.EmitJobCancelled(ctx, rec.ID)
	r.EmitJobUnscheduled(ctx, rec)
	r.EmitLeasesReaped(ctx, "default", 3)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobEnqueued", "OnJobLeased", "OnJobCompleted", "OnJobFailed",
		"OnJobDeadLettered", "OnJobCancelled", "OnJobUnscheduled",
		"OnLeasesReaped", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	eo := &enqueueOnlyExt{}
	r.Register(all)
	r.Register(eo)

	ctx := context.Background()
	rec := &job.Record{Type: "test-job"}

	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobLeased(ctx, rec)

	if len(all.calls) != 2 {
		t.Fatalf("all: expected 2 calls, got %v", all.calls)
	}
	if eo.calls != 1 {
		t.Fatalf("enqueue-only: expected 1 call, got %d", eo.calls)
	}
	if got := len(r.Extensions()); got != 2 {
		t.Fatalf("expected 2 extensions, got %d", got)
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobEnqueued(context.Background(), &job.Record{})

	if len(all.calls) != 1 || all.calls[0] != "OnJobEnqueued" {
		t.Fatalf("expected [OnJobEnqueued] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()
	rec := &job.Record{}

	r.EmitJobEnqueued(ctx, rec)
	r.EmitJobLeased(ctx, rec)
	r.EmitJobCompleted(ctx, rec, time.Second)
	r.EmitJobFailed(ctx, rec)
	r.EmitJobDeadLettered(ctx, rec, "x")
	r.EmitJobCancelled(ctx, id.NewJobID())
	r.EmitJobUnscheduled(ctx, rec)
	r.EmitLeasesReaped(ctx, "q", 0)
	r.EmitShutdown(ctx)
}
