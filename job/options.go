package job

import "time"

// Options configures per-type behavior of a Definition.
type Options struct {
	// MaxRetries is the number of failed attempts tolerated before the job
	// is dead-lettered. A job is dead-lettered once its RetryCount exceeds
	// MaxRetries.
	MaxRetries int

	// Priority is the default enqueue priority for this type.
	Priority int

	// Timeout bounds a single execution. Zero means unlimited.
	Timeout time.Duration

	maxRetriesSet bool
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		Timeout:    5 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxRetries sets the retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
		o.maxRetriesSet = true
	}
}

// WithDefaultPriority sets the priority used when an enqueue call does not
// pass one.
func WithDefaultPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum execution duration.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// ──────────────────────────────────────────────────
// Enqueue options
// ──────────────────────────────────────────────────

// EnqueueOptions are per-call settings for enqueueing a single job.
type EnqueueOptions struct {
	Priority    int
	prioritySet bool

	// ScheduledAt is the earliest checkout time. Zero means now.
	ScheduledAt time.Time
	delay       time.Duration
}

// EnqueueOption configures a single enqueue call.
type EnqueueOption func(*EnqueueOptions)

// WithPriority sets the job priority. Higher values are checked out first.
func WithPriority(p int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Priority = p
		o.prioritySet = true
	}
}

// WithScheduledAt delays eligibility until t.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.ScheduledAt = t
		o.delay = 0
	}
}

// WithDelay delays eligibility by d from the enqueue instant.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.delay = d
		o.ScheduledAt = time.Time{}
	}
}

// ApplyEnqueueOptions resolves opts against the enqueue instant now and the
// fallback priority.
func ApplyEnqueueOptions(now time.Time, defaultPriority int, opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.prioritySet {
		o.Priority = defaultPriority
	}
	switch {
	case o.delay > 0:
		o.ScheduledAt = now.Add(o.delay)
	case o.ScheduledAt.IsZero():
		o.ScheduledAt = now
	}
	return o
}
