package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// ArchiveLister lists archived run journals.
type ArchiveLister interface {
	List(ctx context.Context) ([]domain.BlobInfo, error)
}

// ArchivesHandler serves the archive index.
type ArchivesHandler struct {
	archives ArchiveLister
	logger   *slog.Logger
}

// NewArchivesHandler creates an ArchivesHandler.
func NewArchivesHandler(archives ArchiveLister, logger *slog.Logger) *ArchivesHandler {
	return &ArchivesHandler{archives: archives, logger: logger}
}

// ListArchives returns every archived run journal.
// GET /api/archives
func (h *ArchivesHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archives.List(r.Context())
	if err != nil {
		h.logger.Error("list archives failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
