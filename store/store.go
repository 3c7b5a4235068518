// Package store defines the aggregate persistence interface. The live queue
// (job.Store) and the dead-letter store (dlq.Store) are separate contracts
// that a single backend implements together, because moving a job between
// them must be one transaction. Backends: memory, MongoDB, PostgreSQL (pgx
// and Bun), SQLite and Redis.
package store

import (
	"context"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store
	dlq.Store

	// Migrate creates collections, tables, indexes or scripts.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}
