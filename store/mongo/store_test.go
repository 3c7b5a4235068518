//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/store"
	jobmongo "github.com/xraph/jobstore/store/mongo"
	"github.com/xraph/jobstore/store/storetest"
)

// setupTestClient starts a single-node replica set and returns a client.
func setupTestClient(t *testing.T) *mongod.Client {
	t.Helper()

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
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

	client, err := mongod.Connect(options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(ctx)
	})
	return client
}

func TestConformance(t *testing.T) {
	client := setupTestClient(t)
	var seq atomic.Int64

	storetest.Run(t,
		func(t *testing.T) store.Store {
			// Each case gets its own database.
			name := fmt.Sprintf("jobstore_%d_%s", seq.Add(1), strings.ToLower(t.Name()))
			name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
			if len(name) > 60 {
				name = name[:60]
			}

			s := jobmongo.New(client.Database(name), jobmongo.WithLogger(slog.Default()))
			if err := s.Migrate(context.Background()); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			return s
		},
		storetest.WithDeadLetterSeeder(func(ctx context.Context, s store.Store, e *dlq.Entry) error {
			db := s.(*jobmongo.Store).DB()
			_, err := db.Collection("jobstore_dead_jobs").InsertOne(ctx, map[string]any{
				"_id":          e.ID.String(),
				"queue":        e.Queue,
				"job_type":     e.Type,
				"payload":      e.Payload,
				"retry_count":  e.RetryCount,
				"priority":     e.Priority,
				"scheduled_at": e.ScheduledAt,
				"enqueued_at":  e.EnqueuedAt,
				"reason":       e.Reason,
				"failed_at":    e.FailedAt,
			})
			return err
		}),
	)
}

func TestPing(t *testing.T) {
	client := setupTestClient(t)
	s := jobmongo.New(client.Database("jobstore_ping"))

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// The client stays usable after Close.
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping after Close: %v", err)
	}
}
