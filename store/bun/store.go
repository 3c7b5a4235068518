package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/store"
)

var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using the PostgreSQL
// dialect. The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
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

// New creates a new Bun store.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

type index struct {
	model   any
	name    string
	columns []string
	where   string
}

var indexes = []index{
	{(*jobModel)(nil), "idx_jobstore_jobs_checkout", []string{"queue", "job_type", "priority DESC", "enqueued_at ASC", "id ASC"}, "leased_at IS NULL"},
	{(*jobModel)(nil), "idx_jobstore_jobs_leased", []string{"queue", "leased_at"}, "leased_at IS NOT NULL"},
	{(*jobModel)(nil), "idx_jobstore_jobs_enqueued", []string{"enqueued_at", "id"}, ""},
	{(*deadModel)(nil), "idx_jobstore_dead_jobs_failed", []string{"queue", "failed_at DESC"}, ""},
}

// Migrate creates the tables and indexes from the models. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range []any{(*jobModel)(nil), (*deadModel)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("jobstore/bun: create table: %w: %w", jobstore.ErrMigrationFailed, err)
		}
	}

	for _, idx := range indexes {
		q := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).IfNotExists()
		for _, col := range idx.columns {
			q = q.ColumnExpr(col)
		}
		if idx.where != "" {
			q = q.Where(idx.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("jobstore/bun: create index %s: %w: %w", idx.name, jobstore.ErrMigrationFailed, err)
		}
	}

	s.logger.Debug("bun schema ensured")
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

func unavailable(op string, err error) error {
	return fmt.Errorf("jobstore/bun: %s: %w: %w", op, jobstore.ErrStoreUnavailable, err)
}

func rejected(op string, err error) error {
	return fmt.Errorf("jobstore/bun: %s: %w: %w", op, jobstore.ErrInvalidRecord, err)
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

// isConstraint reports whether err is in SQLSTATE class 23.
func isConstraint(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Field('C'), "23")
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return n
}

// transact runs fn in a transaction. ErrLeaseLost and ErrDLQNotFound pass
// through; any other failure means nothing was committed.
func (s *Store) transact(ctx context.Context, op string, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := s.db.RunInTx(ctx, nil, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobstore.ErrLeaseLost), errors.Is(err, jobstore.ErrDLQNotFound):
		return err
	default:
		return fmt.Errorf("jobstore/bun: %s: %w: %w", op, jobstore.ErrTransactionFailed, err)
	}
}
