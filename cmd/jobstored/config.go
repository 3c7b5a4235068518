package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/codec"
)

// config is the daemon configuration, read from JOBSTORE_* variables.
type config struct {
	jobstore.Config

	// Backend selects the store: memory, postgres, bun, mongo, sqlite or redis.
	Backend string `env:"BACKEND" envDefault:"postgres"`

	// DSN is the connection string for postgres, bun, mongo and redis, or
	// the database file path for sqlite.
	DSN string `env:"DSN"`

	// MongoDatabase names the MongoDB database.
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"jobstore"`

	// RedisPrefix overrides the Redis key prefix.
	RedisPrefix string `env:"REDIS_PREFIX"`

	// Codec names the payload codec: json or msgpack.
	Codec string `env:"CODEC" envDefault:"json"`

	// payloadCodec is Codec resolved by loadConfig.
	payloadCodec codec.Codec

	// Migrate runs schema migrations on startup.
	Migrate bool `env:"MIGRATE" envDefault:"true"`

	// Addr is the admin API listen address. Empty disables the API.
	Addr string `env:"ADDR" envDefault:":8080"`

	// RateLimit caps checkouts per second across the pool. Zero disables it.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"0"`

	// Audit writes lifecycle audit events to the log.
	Audit bool `env:"AUDIT" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

func loadConfig() (config, error) {
	var c config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "JOBSTORE_"}); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	pc, err := codec.ByName(c.Codec)
	if err != nil {
		return c, err
	}
	c.payloadCodec = pc
	if c.Backend != "memory" && c.DSN == "" {
		return c, fmt.Errorf("JOBSTORE_DSN is required for backend %q", c.Backend)
	}
	return c, nil
}

func (c config) logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h).With(slog.String("service", "jobstored"))
}
