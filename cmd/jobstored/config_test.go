package main

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("JOBSTORE_BACKEND", "sqlite")
	t.Setenv("JOBSTORE_DSN", "/tmp/jobs.db")
	t.Setenv("JOBSTORE_QUEUE", "emails")
	t.Setenv("JOBSTORE_CONCURRENCY", "4")
	t.Setenv("JOBSTORE_LEASE_TIMEOUT", "5m")
	t.Setenv("JOBSTORE_CODEC", "msgpack")
	t.Setenv("JOBSTORE_MAX_RETRIES", "7")

	c, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if c.Backend != "sqlite" || c.DSN != "/tmp/jobs.db" || c.Codec != "msgpack" {
		t.Errorf("config = %+v", c)
	}
	if c.payloadCodec == nil || c.payloadCodec.Name() != "msgpack" {
		t.Errorf("payloadCodec = %v, want msgpack", c.payloadCodec)
	}
	if c.Queue != "emails" || c.Concurrency != 4 || c.LeaseTimeout != 5*time.Minute {
		t.Errorf("embedded config = %+v", c.Config)
	}
	if c.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", c.MaxRetries)
	}
	if c.PollInterval != time.Second || c.ReapInterval != 30*time.Second || !c.Migrate {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing dsn", map[string]string{"JOBSTORE_BACKEND": "postgres"}},
		{"unknown codec", map[string]string{"JOBSTORE_BACKEND": "memory", "JOBSTORE_CODEC": "xml"}},
		{"bad duration", map[string]string{"JOBSTORE_BACKEND": "memory", "JOBSTORE_POLL_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, cleanup, err := openStore(ctx, config{Backend: "memory"}, slog.Default())
	if err != nil {
		t.Fatalf("openStore(memory): %v", err)
	}
	defer cleanup()
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	path := t.TempDir() + "/jobs.db"
	s, cleanupSQLite, err := openStore(ctx, config{Backend: "sqlite", DSN: path}, slog.Default())
	if err != nil {
		t.Fatalf("openStore(sqlite): %v", err)
	}
	defer cleanupSQLite()
	if err := s.Migrate(ctx); err != nil {
		t.Errorf("Migrate: %v", err)
	}

	if _, _, err := openStore(ctx, config{Backend: "cassandra", DSN: "x"}, slog.Default()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
