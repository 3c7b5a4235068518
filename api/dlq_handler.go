package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/jobstore/dlq"
)

// PurgeDLQResponse reports how many entries a purge removed.
type PurgeDLQResponse struct {
	Purged int64 `json:"purged"`
}

const defaultPurgeAge = 30 * 24 * time.Hour

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := page(r)
	if err != nil {
		return err
	}

	entries, err := a.eng.DLQService().List(r.Context(), dlq.ListOpts{
		Limit:  limit,
		Offset: offset,
		Queue:  r.URL.Query().Get("queue"),
	})
	if err != nil {
		return fmt.Errorf("list dlq: %w", err)
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (a *API) getDLQ(w http.ResponseWriter, r *http.Request) error {
	jobID, err := parseJobID(r)
	if err != nil {
		return err
	}
	entry, err := a.eng.DLQService().Get(r.Context(), jobID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) error {
	jobID, err := parseJobID(r)
	if err != nil {
		return err
	}
	rec, err := a.eng.DLQService().Replay(r.Context(), jobID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, toJobResponse(rec))
	return nil
}

// purgeDLQ removes entries older than ?older_than= (a Go duration),
// 30 days by default.
func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) error {
	olderThan := defaultPurgeAge
	if s := r.URL.Query().Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return badRequest(fmt.Sprintf("invalid older_than %q", s))
		}
		olderThan = d
	}

	n, err := a.eng.DLQService().Purge(r.Context(), olderThan)
	if err != nil {
		return fmt.Errorf("purge dlq: %w", err)
	}
	writeJSON(w, http.StatusOK, PurgeDLQResponse{Purged: n})
	return nil
}
