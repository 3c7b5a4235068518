// Package bunstore implements store.Store on PostgreSQL through the Bun ORM.
//
// It shares the jobstore_jobs and jobstore_dead_jobs schema with the pgx
// backend, so either can serve the same database. The caller owns the
// *bun.DB.
package bunstore
