package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// JobResponse is a live record with its derived state.
type JobResponse struct {
	*job.Record
	State job.State `json:"state"`
}

func toJobResponse(r *job.Record) JobResponse {
	return JobResponse{Record: r, State: r.State()}
}

func parseJobID(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		return id.Nil, badRequest(fmt.Sprintf("invalid job ID: %v", err))
	}
	return jobID, nil
}

func parseState(s string) (job.State, error) {
	switch st := job.State(s); st {
	case "", job.StateWaiting, job.StateLeased:
		return st, nil
	default:
		return "", badRequest(fmt.Sprintf("invalid state %q", s))
	}
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) error {
	limit, offset, err := page(r)
	if err != nil {
		return err
	}
	state, err := parseState(r.URL.Query().Get("state"))
	if err != nil {
		return err
	}

	recs, err := a.eng.Store().ListJobs(r.Context(), job.ListOpts{
		Limit:  limit,
		Offset: offset,
		Queue:  r.URL.Query().Get("queue"),
		State:  state,
	})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	out := make([]JobResponse, len(recs))
	for i, rec := range recs {
		out[i] = toJobResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) error {
	jobID, err := parseJobID(r)
	if err != nil {
		return err
	}
	rec, err := a.eng.Store().GetJob(r.Context(), jobID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, toJobResponse(rec))
	return nil
}

// cancelJob removes a waiting job. With ?queue= the job must belong to that
// queue; otherwise it is reported as not found.
func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) error {
	jobID, err := parseJobID(r)
	if err != nil {
		return err
	}

	if queue := r.URL.Query().Get("queue"); queue != "" {
		rec, err := a.eng.Store().GetJob(r.Context(), jobID)
		if err != nil {
			return err
		}
		if rec.Queue != queue {
			return &httpError{status: http.StatusNotFound, msg: fmt.Sprintf("job %s is not in queue %q", jobID, queue)}
		}
	}

	if err := a.eng.Cancel(r.Context(), jobID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
