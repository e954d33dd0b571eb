package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/jobs/id"
)

func (a *API) listScheduled(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.ListScheduled(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) getScheduled(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := scheduleIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	entry, err := a.eng.Scheduler().Get(r.Context(), scheduleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) registerScheduled(w http.ResponseWriter, r *http.Request) {
	var req RegisterScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Type == "" {
		a.fail(w, r, badRequest("type is required"))
		return
	}
	if req.Schedule.Kind() == "" {
		a.fail(w, r, badRequest("schedule is required"))
		return
	}
	opts, err := jobOptions(req.Priority, req.MaxRetries, req.Timeout)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	scheduleID, err := a.eng.RegisterScheduled(r.Context(), req.Type, req.Payload, req.Schedule, opts...)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterScheduleResponse{ID: scheduleID})
}

func (a *API) unregisterScheduled(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := scheduleIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.eng.UnregisterScheduled(r.Context(), scheduleID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) enableScheduled(w http.ResponseWriter, r *http.Request) {
	a.setScheduledEnabled(w, r, true)
}

func (a *API) disableScheduled(w http.ResponseWriter, r *http.Request) {
	a.setScheduledEnabled(w, r, false)
}

func (a *API) setScheduledEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	scheduleID, err := scheduleIDParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.eng.SetScheduledEnabled(r.Context(), scheduleID, enabled); err != nil {
		a.fail(w, r, err)
		return
	}
	entry, err := a.eng.Scheduler().Get(r.Context(), scheduleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) triggerScheduled(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.Scheduler().Trigger(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TriggerResponse{Enqueued: n})
}

func scheduleIDParam(r *http.Request) (id.ScheduleID, error) {
	scheduleID, err := id.ParseScheduleID(chi.URLParam(r, "scheduleID"))
	if err != nil {
		return id.ScheduleID{}, badRequest("invalid schedule id: %v", err)
	}
	return scheduleID, nil
}
