package handlers

import (
	"net/http"
)

// Health reports process liveness. It deliberately touches no dependency:
// a degraded provider or database must not take the process out of rotation.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
