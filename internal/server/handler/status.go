package handler

import (
	"net/http"

	"github.com/alanyoungcy/polytrader/internal/runner"
)

// StatusSource reports the state of the strategy run.
type StatusSource interface {
	Status() runner.Status
}

// StatusHandler serves the run status for monitors.
type StatusHandler struct {
	Mode   string
	source StatusSource
}

// NewStatusHandler creates a StatusHandler for the given mode.
func NewStatusHandler(mode string, source StatusSource) *StatusHandler {
	return &StatusHandler{Mode: mode, source: source}
}

// GetStatus responds with the mode and a snapshot of the run: iteration,
// permission lock, patience waiting list and failure counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode": h.Mode,
		"run":  h.source.Status(),
	})
}
