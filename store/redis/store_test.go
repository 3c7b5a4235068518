//go:build integration

package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/store"
	"github.com/xraph/jobstore/store/storetest"
)

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConformance(t *testing.T) {
	client := setupTestClient(t)
	var seq atomic.Int64

	storetest.Run(t,
		func(t *testing.T) store.Store {
			s := New(client, WithPrefix(fmt.Sprintf("{jobstore-test-%d}:", seq.Add(1))))
			if err := s.Migrate(context.Background()); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return s
		},
		storetest.WithDeadLetterSeeder(func(ctx context.Context, st store.Store, e *dlq.Entry) error {
			s := st.(*Store)
			member := stamp(e.FailedAt) + ":" + e.ID.String()
			pipe := s.client.TxPipeline()
			pipe.HSet(ctx, s.keys.dead(e.ID.String()),
				"queue", e.Queue, "job_type", e.Type, "payload", e.Payload,
				"retry_count", e.RetryCount, "priority", e.Priority,
				"scheduled_at", stamp(e.ScheduledAt), "enqueued_at", stamp(e.EnqueuedAt),
				"reason", e.Reason, "failed_at", stamp(e.FailedAt),
			)
			pipe.ZAdd(ctx, s.keys.deadIndex(""), goredis.Z{Member: member})
			pipe.ZAdd(ctx, s.keys.deadIndex(e.Queue), goredis.Z{Member: member})
			_, err := pipe.Exec(ctx)
			return err
		}),
	)
}

func TestScheduledPromotionRespectsNanoseconds(t *testing.T) {
	client := setupTestClient(t)
	s := New(client, WithPrefix("{jobstore-nanos}:"))
	ctx := context.Background()

	// Same millisecond as now, half a millisecond later.
	now := time.Date(2030, time.May, 6, 7, 8, 9, 100_000_000, time.UTC)
	r := &job.Record{
		ID:          id.NewJobID(),
		Queue:       "nanos",
		Type:        "email",
		Payload:     []byte("{}"),
		ScheduledAt: now.Add(500 * time.Microsecond),
		EnqueuedAt:  now,
	}
	if err := s.InsertJob(ctx, r); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	params := job.ClaimParams{Queue: "nanos", Types: []string{"email"}, Now: now}
	if got, err := s.ClaimJob(ctx, params); err != nil || got != nil {
		t.Fatalf("ClaimJob before schedule = %v, %v; want nil, nil", got, err)
	}

	params.Now = r.ScheduledAt
	got, err := s.ClaimJob(ctx, params)
	if err != nil || got == nil {
		t.Fatalf("ClaimJob at schedule = %v, %v", got, err)
	}
	if got.ID != r.ID {
		t.Fatalf("claimed %s, want %s", got.ID, r.ID)
	}
}
