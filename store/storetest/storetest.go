// Package storetest is a conformance suite for store.Store implementations.
// Every backend runs it from its own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
//	}
//
// Subtests use unique queue names, so a factory may hand out the same
// backing database to several subtests.
package storetest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/queue"
	"github.com/xraph/jobstore/store"
)

// Factory returns a migrated store for one subtest.
type Factory func(t *testing.T) store.Store

// DeadLetterSeeder writes e straight into the dead-letter store of s,
// bypassing the live queue. The suite uses it to make a dead-letter move
// conflict and abort.
type DeadLetterSeeder func(ctx context.Context, s store.Store, e *dlq.Entry) error

type config struct {
	seed DeadLetterSeeder
}

// Option configures Run.
type Option func(*config)

// WithDeadLetterSeeder enables the forced-failure half of the dead-letter
// atomicity test.
func WithDeadLetterSeeder(fn DeadLetterSeeder) Option {
	return func(c *config) { c.seed = fn }
}

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory, opts ...Option) {
	t.Helper()

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{newStore: newStore, cfg: cfg}

	t.Run("Enqueue", h.testEnqueue)
	t.Run("EnqueueDuplicateID", h.testEnqueueDuplicateID)
	t.Run("EmptyPayload", h.testEmptyPayload)
	t.Run("CheckoutEmpty", h.testCheckoutEmpty)
	t.Run("CheckoutNoTypes", h.testCheckoutNoTypes)
	t.Run("CheckoutTypeFilter", h.testCheckoutTypeFilter)
	t.Run("CheckoutQueueIsolation", h.testCheckoutQueueIsolation)
	t.Run("AtMostOneLease", h.testAtMostOneLease)
	t.Run("ConcurrentCheckoutDistinctJobs", h.testConcurrentCheckoutDistinctJobs)
	t.Run("PriorityOrder", h.testPriorityOrder)
	t.Run("PriorityOverBacklog", h.testPriorityOverBacklog)
	t.Run("FIFOWithinPriority", h.testFIFOWithinPriority)
	t.Run("SchedulingGate", h.testSchedulingGate)
	t.Run("RetryCountMonotonic", h.testRetryCountMonotonic)
	t.Run("CompleteRemoves", h.testCompleteRemoves)
	t.Run("LeaseResolvedOnce", h.testLeaseResolvedOnce)
	t.Run("DeadLetterMovesJob", h.testDeadLetterMovesJob)
	t.Run("DeadLetterAbortKeepsJob", h.testDeadLetterAbortKeepsJob)
	t.Run("Cancel", h.testCancel)
	t.Run("CancelCheckoutRace", h.testCancelCheckoutRace)
	t.Run("Unschedule", h.testUnschedule)
	t.Run("ReapExpiredLeases", h.testReapExpiredLeases)
	t.Run("RequeueDLQ", h.testRequeueDLQ)
	t.Run("PurgeDLQ", h.testPurgeDLQ)
	t.Run("ListAndCount", h.testListAndCount)
}

type harness struct {
	newStore Factory
	cfg      config
}

// base is a whole second so backends with millisecond timestamps store it
// exactly.
var base = time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a Clock set to t.
func NewClock(t time.Time) *Clock { return &Clock{t: t} }

// Now returns the current time and advances the clock by one second, so
// consecutive enqueues get distinct timestamps.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(time.Second)
	return now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// setup returns a fresh store, a queue with a unique name and its clock.
func (h *harness) setup(t *testing.T) (store.Store, *queue.Queue, *Clock) {
	t.Helper()
	s := h.newStore(t)
	clk := NewClock(base)
	q := queue.New(s,
		queue.WithName(queueName(t)),
		queue.WithClock(clk.Now),
	)
	return s, q, clk
}

func queueName(t *testing.T) string {
	return strings.NewReplacer("/", "-", " ", "_").Replace(t.Name())
}
