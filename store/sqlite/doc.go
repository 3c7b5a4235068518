// Package sqlite implements store.Store on SQLite using the pure-Go
// modernc.org/sqlite driver.
//
// SQLite serializes writers, so checkout is a single UPDATE ... RETURNING
// statement and transactions start with BEGIN IMMEDIATE. Timestamps are
// stored as Unix nanoseconds, which keeps lease fencing exact.
//
//	s, err := sqlite.Open(ctx, "/var/lib/app/jobs.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
package sqlite
