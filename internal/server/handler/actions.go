package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// RecordSource holds the in-memory journal of the current run.
type RecordSource interface {
	RunID() string
	Records() []domain.ActionRecord
}

// ActionsHandler serves journaled actions.
type ActionsHandler struct {
	journal RecordSource
	store   domain.ActionStore
	logger  *slog.Logger
}

// NewActionsHandler creates an ActionsHandler. store may be nil, in which
// case only the current run is served, from memory.
func NewActionsHandler(journal RecordSource, store domain.ActionStore, logger *slog.Logger) *ActionsHandler {
	return &ActionsHandler{journal: journal, store: store, logger: logger}
}

// ListActions returns the actions of a run, newest first. run_id defaults
// to the current run.
// GET /api/actions
func (h *ActionsHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID = h.journal.RunID()
	}

	if h.store != nil {
		recs, err := h.store.ListByRun(r.Context(), runID, opts)
		if err != nil {
			h.logger.Error("list actions failed", slog.String("run_id", runID), slog.String("error", err.Error()))
			writeError(w, statusFor(err), "failed to list actions")
			return
		}
		if recs == nil {
			recs = []domain.ActionRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "actions": recs})
		return
	}

	if runID != h.journal.RunID() {
		writeError(w, http.StatusNotFound, "only the current run is kept without a store")
		return
	}
	recs := slices.Clone(h.journal.Records())
	recs = slices.DeleteFunc(recs, func(rec domain.ActionRecord) bool {
		return (opts.Since != nil && rec.RecordedAt.Before(*opts.Since)) ||
			(opts.Until != nil && !rec.RecordedAt.Before(*opts.Until))
	})
	slices.Reverse(recs)
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "actions": page(recs, opts)})
}
