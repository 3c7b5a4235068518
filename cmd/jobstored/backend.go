package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobstore/store"
	bunstore "github.com/xraph/jobstore/store/bun"
	"github.com/xraph/jobstore/store/memory"
	mongostore "github.com/xraph/jobstore/store/mongo"
	"github.com/xraph/jobstore/store/postgres"
	redisstore "github.com/xraph/jobstore/store/redis"
	"github.com/xraph/jobstore/store/sqlite"
)

// openStore connects the configured backend. The returned cleanup closes
// the store and any client the daemon created for it.
func openStore(ctx context.Context, c config, logger *slog.Logger) (store.Store, func(), error) {
	switch c.Backend {
	case "memory":
		s := memory.New()
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		s, err := postgres.New(ctx, c.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(c.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s := bunstore.New(db, bunstore.WithLogger(logger))
		return s, func() { _ = db.Close() }, nil

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(c.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		s := mongostore.New(client.Database(c.MongoDatabase), mongostore.WithLogger(logger))
		return s, func() { _ = client.Disconnect(context.Background()) }, nil

	case "sqlite":
		s, err := sqlite.Open(ctx, c.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case "redis":
		opts, err := goredis.ParseURL(c.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		ropts := []redisstore.Option{redisstore.WithLogger(logger)}
		if c.RedisPrefix != "" {
			ropts = append(ropts, redisstore.WithPrefix(c.RedisPrefix))
		}
		s := redisstore.New(client, ropts...)
		return s, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}
