// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// Checkout is one UPDATE over a FOR UPDATE SKIP LOCKED subquery, so
// concurrent workers never block on each other's candidate rows. Moves
// between jobstore_jobs and jobstore_dead_jobs run in a transaction. The
// schema is managed by goose from embedded SQL files.
package postgres
