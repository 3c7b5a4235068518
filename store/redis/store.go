package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix sets the key prefix. Keep a {hash tag} in it when running
// against Redis Cluster.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.keys = keys{prefix: prefix} }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	keys   keys
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the client.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		keys:   keys{prefix: DefaultPrefix},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate loads the Lua scripts into the server's script cache.
func (s *Store) Migrate(ctx context.Context) error {
	for _, script := range allScripts {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return fmt.Errorf("jobstore/redis: load script: %w: %w", jobstore.ErrMigrationFailed, err)
		}
	}
	s.logger.Debug("redis scripts loaded", slog.Int("count", len(allScripts)))
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client.
func (s *Store) Close() error { return nil }

// ── helpers ──────────────────────────────────────────────────────

func unavailable(op string, err error) error {
	return fmt.Errorf("jobstore/redis: %s: %w: %w", op, jobstore.ErrStoreUnavailable, err)
}

// run executes script with the prefix as ARGV[1] and routes on key.
func (s *Store) run(ctx context.Context, script *goredis.Script, key string, args ...any) (any, error) {
	argv := make([]any, 0, len(args)+1)
	argv = append(argv, s.keys.prefix)
	argv = append(argv, args...)
	return script.Run(ctx, s.client, []string{key}, argv...).Result()
}

func isNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// status returns the script's status reply, or "" for a table reply.
func status(res any) string {
	if s, ok := res.(string); ok {
		return s
	}
	return ""
}

// flatHash converts a flat HGETALL-style script reply into a map.
func flatHash(res any) (map[string]string, error) {
	flat, ok := res.([]any)
	if !ok || len(flat)%2 != 0 {
		return nil, fmt.Errorf("jobstore/redis: unexpected script reply %T", res)
	}
	m := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		m[k] = v
	}
	return m, nil
}
