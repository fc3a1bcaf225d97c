package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// OperatorPrefix namespaces lock owners taken through the API so they cannot
// release the runner's own backoff lock.
const OperatorPrefix = "operator:"

// LockController is the permission lock surface exposed to operators.
type LockController interface {
	PutLock(level int, owner string, override bool) error
	ReleaseLock(owner string, raiseIfMissing bool) error
	SudoReleaseAll()
	CurrentLevel() int
	CurrentLabel() string
	Owners() map[string]int
}

// LockHandler lets an operator inspect and move the permission lock.
type LockHandler struct {
	lock   LockController
	logger *slog.Logger
}

// NewLockHandler creates a LockHandler.
func NewLockHandler(lock LockController, logger *slog.Logger) *LockHandler {
	return &LockHandler{lock: lock, logger: logger.With(slog.String("handler", "lock"))}
}

type putLockRequest struct {
	Owner    string `json:"owner"`
	Level    int    `json:"level"`
	Override bool   `json:"override"`
}

// GetLock responds with the effective level and every owner.
// GET /api/lock
func (h *LockHandler) GetLock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

// PutLock takes a lock for an operator-named owner.
// POST /api/lock
func (h *LockHandler) PutLock(w http.ResponseWriter, r *http.Request) {
	var req putLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Owner = strings.TrimSpace(req.Owner)
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	owner := OperatorPrefix + req.Owner
	if err := h.lock.PutLock(req.Level, owner, req.Override); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("operator lock put", slog.String("owner", owner), slog.Int("level", req.Level))
	writeJSON(w, http.StatusOK, h.view())
}

// ReleaseLock releases an operator-named owner.
// DELETE /api/lock/{owner}
func (h *LockHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	owner := OperatorPrefix + r.PathValue("owner")
	if err := h.lock.ReleaseLock(owner, true); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("operator lock released", slog.String("owner", owner))
	writeJSON(w, http.StatusOK, h.view())
}

// SudoReleaseAll drops every owner, the runner included, to normal trade.
// POST /api/lock/sudo-release
func (h *LockHandler) SudoReleaseAll(w http.ResponseWriter, r *http.Request) {
	h.lock.SudoReleaseAll()
	h.logger.Warn("operator released all locks")
	writeJSON(w, http.StatusOK, h.view())
}

func (h *LockHandler) view() map[string]any {
	return map[string]any{
		"level":  h.lock.CurrentLevel(),
		"label":  h.lock.CurrentLabel(),
		"owners": h.lock.Owners(),
	}
}
