package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// maxPageSize bounds page_size on /history.
const maxPageSize = 1000

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	state, err := job.ParseState(r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, badRequest("%v", err))
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list := a.eng.ListJobs(state, limit)
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: list, Count: len(list)})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	pageSize = min(pageSize, maxPageSize)
	writeJSON(w, http.StatusOK, a.eng.HistoryPage(page, pageSize, r.URL.Query().Get("q")))
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	info, err := a.eng.Status(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Type == "" {
		a.fail(w, r, badRequest("type is required"))
		return
	}
	opts, err := jobOptions(req.Priority, req.MaxRetries, req.Timeout)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	jobID, err := a.eng.Enqueue(r.Context(), req.Type, req.Payload, opts...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: jobID})
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !a.eng.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no live job "+jobID.String())
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: true})
}

func jobIDParam(r *http.Request) (id.JobID, error) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		return id.NilJob, badRequest("invalid job id: %v", err)
	}
	return jobID, nil
}
