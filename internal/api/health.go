package api

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// healthHandler serves the probe endpoints and the root banner.
type healthHandler struct {
	serviceName string
	pool        *pgxpool.Pool
	logger      *slog.Logger
}

// root handles GET / with a service banner.
func (h *healthHandler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "PDF Bot API is running",
		"status":  "ok",
	})
}

// health is the liveness probe. Returns 200 while the process is alive.
func (h *healthHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// ready is the readiness probe. Pings the database so load balancers stop
// routing before the pool is usable.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeDetail(w, http.StatusServiceUnavailable, "database pool not configured")
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeDetail(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
