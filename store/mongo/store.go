package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/store"
)

// Collection name constants.
const (
	colJobs = "jobstore_jobs"
	colDead = "jobstore_dead_jobs"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on MongoDB.
//
// Checkout is a single findOneAndUpdate. Dead-lettering and requeueing run
// in multi-document transactions, so the server must be a replica set or
// sharded cluster. The caller owns the client; Close never disconnects it.
type Store struct {
	db     *mongod.Database
	jobs   *mongod.Collection
	dead   *mongod.Collection
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a MongoDB store over db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		jobs:   db.Collection(colJobs),
		dead:   db.Collection(colDead),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the indexes used by checkout, listing and purging.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("jobstore/mongo: migrate %s indexes: %w: %w", col, jobstore.ErrMigrationFailed, err)
		}
	}
	s.logger.Debug("mongo indexes ensured", slog.String("database", s.db.Name()))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op because the caller owns the client.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

func unavailable(op string, err error) error {
	return fmt.Errorf("jobstore/mongo: %s: %w: %w", op, jobstore.ErrStoreUnavailable, err)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// transact runs fn in a transaction. Errors that carry a jobstore sentinel
// pass through unchanged; any other failure means the transaction did not
// commit.
func (s *Store) transact(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return unavailable(op, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobstore.ErrLeaseLost), errors.Is(err, jobstore.ErrDLQNotFound):
		return err
	default:
		return fmt.Errorf("jobstore/mongo: %s: %w: %w", op, jobstore.ErrTransactionFailed, err)
	}
}

// migrationIndexes returns the index definitions for both collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colJobs: {
			// Checkout: equality fields first, then the sort.
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "job_type", Value: 1},
				{Key: "leased_at", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "enqueued_at", Value: 1},
			}},
			// Reaper and state filters.
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "leased_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "enqueued_at", Value: 1}}},
		},
		colDead: {
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "failed_at", Value: -1},
			}},
			{Keys: bson.D{{Key: "failed_at", Value: 1}}},
		},
	}
}

// leaseFilter matches the record held under (jobID, leasedAt).
func leaseFilter(jobID id.JobID, leasedAt time.Time) bson.M {
	return bson.M{"_id": jobID.String(), "leased_at": leasedAt}
}
