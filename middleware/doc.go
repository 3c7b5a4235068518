// Package middleware wraps job handler execution.
//
// Middleware see the leased record for the attempt in progress. They run
// inside the worker between checkout and lease resolution, so they can
// observe and change the handler's outcome but never touch the store.
//
//	chain := middleware.Chain(
//	    middleware.Logging(logger),
//	    middleware.Recover(logger),
//	    middleware.Timeout(logger, registry),
//	)
//
// Built-ins: [Logging], [Recover], [Timeout], [Tracing] and [Metrics].
package middleware
