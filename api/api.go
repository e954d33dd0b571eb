// Package api exposes the job engine over HTTP for operators and the CLI.
//
// Every route lives under /admin/jobs and speaks JSON. Errors are returned
// as {"error": {"code": ..., "message": ...}} with a status code derived
// from the engine's sentinel errors.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/jobs/engine"
)

// BasePath is where the admin routes are mounted.
const BasePath = "/admin/jobs"

// API wires the HTTP handlers to an engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API for eng.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{eng: eng, logger: logger}
}

// Handler returns a router serving every admin route under BasePath.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	r.Route(BasePath, a.RegisterRoutes)
	return r
}

// RegisterRoutes registers the admin routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	a.registerStatsRoutes(r)
	a.registerDeadLetterRoutes(r)
	a.registerScheduleRoutes(r)
	a.registerJobRoutes(r)
}

func (a *API) registerJobRoutes(r chi.Router) {
	r.Get("/list", a.listJobs)
	r.Get("/history", a.history)
	r.Post("/enqueue", a.enqueue)
	r.Post("/retry-all", a.retryAll)
	r.Get("/{jobID}", a.getJob)
	r.Post("/{jobID}/retry", a.retryJob)
	r.Post("/{jobID}/cancel", a.cancelJob)
}

func (a *API) registerDeadLetterRoutes(r chi.Router) {
	r.Get("/dead-letter", a.listDeadLetters)
	r.Delete("/dead-letter", a.clearDeadLetters)
}

func (a *API) registerScheduleRoutes(r chi.Router) {
	r.Get("/scheduled", a.listScheduled)
	r.Post("/scheduled", a.registerScheduled)
	r.Post("/scheduled/trigger", a.triggerScheduled)
	r.Get("/scheduled/{scheduleID}", a.getScheduled)
	r.Delete("/scheduled/{scheduleID}", a.unregisterScheduled)
	r.Post("/scheduled/{scheduleID}/enable", a.enableScheduled)
	r.Post("/scheduled/{scheduleID}/disable", a.disableScheduled)
}

func (a *API) registerStatsRoutes(r chi.Router) {
	r.Get("/stats", a.stats)
}
