package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// AuditHandler serves the audit log.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// ListAudit returns audit entries, newest first.
// GET /api/audit
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list audit failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
