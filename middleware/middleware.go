package middleware

import (
	"context"

	"github.com/xraph/jobstore/job"
)

// Handler is the terminal function that executes job logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler. It receives the leased record being executed
// and the next handler; it must call next unless it short-circuits.
type Middleware func(ctx context.Context, r *job.Record, next Handler) error

// Chain composes middleware into one. The first middleware is the
// outermost wrapper: Chain(logging, recover) runs logging → recover → handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, r, prev)
			}
		}
		return h(ctx)
	}
}
