package api

import (
	"net/http"
)

func (a *API) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	dls, err := a.eng.DeadLetters(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeadLettersResponse{DeadLetters: dls, Count: len(dls)})
}

func (a *API) clearDeadLetters(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.ClearDeadLetters(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Cleared: n})
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	newID, err := a.eng.RetryDeadLetter(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RetryResponse{ID: newID, Original: jobID})
}

func (a *API) retryAll(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.RetryAllDeadLetters(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RetryAllResponse{Retried: n})
}
