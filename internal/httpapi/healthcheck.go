package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"thamestides-server/internal/utils"
)

const requiredTablesSQL = `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('readings', 'predictions')`

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db *sql.DB
}

func NewHealthchecker(db *sql.DB) healthchecker {
	return &healthcheckerImpl{db: db}
}

// handleHealthz reports ok when the database answers and both tables the API
// reads from are present.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var tables int
	if err := h.db.QueryRowContext(r.Context(), requiredTablesSQL).Scan(&tables); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "failed to check database connectivity")
		return
	}
	if tables != 2 {
		slog.Warn("healthcheck: tables missing", "found", tables)
		utils.WriteError(w, http.StatusServiceUnavailable, "readings or predictions table missing")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB) {
	healthchecker := NewHealthchecker(db)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
