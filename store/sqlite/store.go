package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite" // registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dsnParams wait on a locked database, allow readers during writes and make
// every transaction take the write lock up front.
const dsnParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db     *sql.DB
	owned  bool
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

// Open opens (creating if needed) the database file at path. The returned
// Store owns the handle and closes it on Close.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, unavailable("open", err)
	}
	// One connection: SQLite allows a single writer and the store writes on
	// almost every call.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("open", err)
	}

	s := NewFromDB(db, opts...)
	s.owned = true
	return s, nil
}

// DSN returns the connection string Open uses for path.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + dsnParams
}

// NewFromDB wraps an existing handle opened with the "sqlite" driver. The
// caller owns db and should open it with DSN.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("jobstore/sqlite: %w: %w", jobstore.ErrMigrationFailed, err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("jobstore/sqlite: create migration provider: %w: %w", jobstore.ErrMigrationFailed, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("jobstore/sqlite: apply migrations: %w: %w", jobstore.ErrMigrationFailed, err)
	}
	for _, r := range results {
		s.logger.Info("applied migration", slog.String("file", r.Source.Path))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the handle if the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

func unavailable(op string, err error) error {
	return fmt.Errorf("jobstore/sqlite: %s: %w: %w", op, jobstore.ErrStoreUnavailable, err)
}

func rejected(op string, err error) error {
	return fmt.Errorf("jobstore/sqlite: %s: %w: %w", op, jobstore.ErrInvalidRecord, err)
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isConstraint reports whether err is any SQLITE_CONSTRAINT failure.
func isConstraint(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return n
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// transact runs fn in a write transaction. ErrLeaseLost and ErrDLQNotFound
// pass through; any other failure after BEGIN means nothing was committed.
func (s *Store) transact(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err == nil {
		err = tx.Commit()
	} else {
		_ = tx.Rollback()
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobstore.ErrLeaseLost), errors.Is(err, jobstore.ErrDLQNotFound):
		return err
	default:
		return fmt.Errorf("jobstore/sqlite: %s: %w: %w", op, jobstore.ErrTransactionFailed, err)
	}
}
