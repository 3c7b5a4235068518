package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/jobstore/job"
)

// StatsResponse holds queue depth counts.
type StatsResponse struct {
	Queue   string `json:"queue,omitempty"`
	Waiting int64  `json:"waiting"`
	Leased  int64  `json:"leased"`
	Dead    int64  `json:"dead"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	queue := r.URL.Query().Get("queue")
	resp := StatsResponse{Queue: queue}

	for _, c := range []struct {
		state job.State
		dst   *int64
	}{
		{job.StateWaiting, &resp.Waiting},
		{job.StateLeased, &resp.Leased},
	} {
		n, err := a.eng.Store().CountJobs(ctx, job.CountOpts{Queue: queue, State: c.state})
		if err != nil {
			return fmt.Errorf("count jobs (%s): %w", c.state, err)
		}
		*c.dst = n
	}

	dead, err := a.eng.DLQService().Count(ctx, queue)
	if err != nil {
		return fmt.Errorf("count dlq: %w", err)
	}
	resp.Dead = dead

	writeJSON(w, http.StatusOK, resp)
	return nil
}
