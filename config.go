package jobstore

import "time"

// Config holds runtime settings shared by the worker pool and the daemon.
// Field tags are read by github.com/caarlos0/env.
type Config struct {
	// Queue is the logical queue name this process serves.
	Queue string `env:"QUEUE" envDefault:"default"`

	// Concurrency is the number of polling workers.
	Concurrency int `env:"CONCURRENCY" envDefault:"10"`

	// PollInterval is how long an idle worker waits before checking out again.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	// LeaseTimeout is how long a lease may stay unresolved before the reaper
	// returns the job to the waiting state. Zero disables reaping.
	LeaseTimeout time.Duration `env:"LEASE_TIMEOUT" envDefault:"0s"`

	// ReapInterval is how often expired leases are scanned for.
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"30s"`

	// MaxRetries is the default retry budget for definitions that do not
	// set their own.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Queue:           "default",
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		ReapInterval:    30 * time.Second,
		MaxRetries:      3,
		ShutdownTimeout: 30 * time.Second,
	}
}
