package api

import "net/http"

func (a *API) stats(w http.ResponseWriter, _ *http.Request) {
	d := a.eng.Dispatcher()
	writeJSON(w, http.StatusOK, StatsResponse{
		Snapshot:    a.eng.Stats(),
		QueueDepth:  d.Depth(),
		Accepting:   d.Accepting(),
		Persistence: a.eng.Persistence(),
	})
}
