// Package api serves the admin HTTP API: inspecting and cancelling live
// jobs, inspecting, replaying and purging dead-letter entries, and queue
// statistics. Routes are mounted on a chi router.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/engine"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API over eng.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a router with every route registered.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the /v1 routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/jobs", a.handle(a.listJobs))
		r.Get("/jobs/{jobID}", a.handle(a.getJob))
		r.Delete("/jobs/{jobID}", a.handle(a.cancelJob))

		r.Get("/dlq", a.handle(a.listDLQ))
		r.Delete("/dlq", a.handle(a.purgeDLQ))
		r.Get("/dlq/{jobID}", a.handle(a.getDLQ))
		r.Post("/dlq/{jobID}/replay", a.handle(a.replayDLQ))

		r.Get("/stats", a.handle(a.stats))
	})
}

// ── helpers ──

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// httpError is an error with a status code, returned by handlers.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			a.logger.Error("api request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
	}
}

func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, jobstore.ErrJobNotFound), errors.Is(err, jobstore.ErrDLQNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobstore.ErrJobAlreadyExists):
		return http.StatusConflict
	case jobstore.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// page reads limit and offset. A missing limit is defaultPageSize.
func page(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, badRequest("limit must be a positive integer")
		}
		limit = min(limit, maxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, badRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
