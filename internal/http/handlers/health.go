package handlers

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
)

// Healthz: liveness. No toca dependencias.
func (h *H) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz: readiness. Postgres y cache deben responder y la clave maestra
// debe estar cargada.
func (h *H) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.c.Repo.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		ready = false
	} else {
		checks["postgres"] = "ok"
	}
	if err := h.c.Cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		ready = false
	} else {
		checks["cache"] = "ok"
	}
	if !secretbox.Ready() {
		checks["master_key"] = "no cargada"
		ready = false
	} else {
		checks["master_key"] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}
