// # Available Backends
//
//   - store/memory: in-process, for tests and single-process use
//   - store/mongo: MongoDB, findOneAndUpdate checkout, multi-document transactions
//   - store/postgres: PostgreSQL via pgx/v5, FOR UPDATE SKIP LOCKED
//   - store/bun: PostgreSQL via the Bun ORM
//   - store/sqlite: SQLite via modernc.org/sqlite, BEGIN IMMEDIATE transactions
//   - store/redis: Redis, every transition is one Lua script
//
// Every backend passes the store/storetest conformance suite.
//
// # Usage
//
//	s := postgres.New(pool)
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
//	q := queue.New(s, queue.WithName("emails"))
package store
