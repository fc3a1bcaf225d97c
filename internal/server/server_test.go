package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/permission"
	"github.com/alanyoungcy/polytrader/internal/runner"
	"github.com/alanyoungcy/polytrader/internal/server/handler"
)

type fixedStatus struct{ st runner.Status }

func (f fixedStatus) Status() runner.Status { return f.st }

type memJournal struct {
	runID string
	recs  []domain.ActionRecord
}

func (m *memJournal) RunID() string                  { return m.runID }
func (m *memJournal) Records() []domain.ActionRecord { return m.recs }

type memAudit struct{ err error }

func (m memAudit) Log(context.Context, string, map[string]any) error { return nil }
func (m memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.AuditEntry{{ID: 1, Event: "lock_change"}}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyAll) Wait(context.Context, string) error                             { return nil }

func newTestServer(t *testing.T, cfg Config, lock *permission.Lock, limiter domain.RateLimiter, checks map[string]handler.Check) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	j := &memJournal{runID: "run-1"}
	for i := range 5 {
		j.recs = append(j.recs, domain.ActionRecord{
			ID:         string(rune('a' + i)),
			RunID:      "run-1",
			RecordedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}
	srv := NewServer(cfg, Handlers{
		Health:  handler.NewHealthHandler(checks, logger),
		Status:  handler.NewStatusHandler("paper", fixedStatus{runner.Status{RunID: "run-1", Strategy: "quote"}}),
		Lock:    handler.NewLockHandler(lock, logger),
		Actions: handler.NewActionsHandler(j, nil, logger),
		Audit:   handler.NewAuditHandler(memAudit{}, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
	}, limiter, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndStatus(t *testing.T) {
	h := newTestServer(t, Config{}, permission.New(), nil, map[string]handler.Check{
		"redis": func(context.Context) error { return nil },
	})

	rec, body := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paper", body["mode"])
	assert.Equal(t, "quote", body["run"].(map[string]any)["strategy"])
}

func TestHealthDegraded(t *testing.T) {
	h := newTestServer(t, Config{}, permission.New(), nil, map[string]handler.Check{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	rec, body := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["dependencies"].(map[string]any)["postgres"])
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, Config{APIKey: "secret"}, permission.New(), nil, nil)

	rec, _ := do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/status", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/status", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/status", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestLockEndpoints(t *testing.T) {
	lock := permission.New()
	require.NoError(t, lock.PutBackoff(runner.Owner, false))
	h := newTestServer(t, Config{}, lock, nil, nil)

	rec, body := do(t, h, http.MethodPost, "/api/lock", `{"owner":"alice","level":20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), body["level"])
	assert.Equal(t, 20, lock.Owners()["operator:alice"])

	// A second put without override conflicts.
	rec, _ = do(t, h, http.MethodPost, "/api/lock", `{"owner":"alice","level":10}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/lock", `{"owner":"alice","level":10,"override":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, lock.Owners()["operator:alice"])

	rec, _ = do(t, h, http.MethodPost, "/api/lock", `{"owner":"bob","level":101}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/lock", `{"level":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The runner's own lock is out of reach.
	rec, _ = do(t, h, http.MethodDelete, "/api/lock/runner", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, permission.LevelBackoff, lock.CurrentLevel())

	rec, _ = do(t, h, http.MethodDelete, "/api/lock/alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, lock.Owners(), "operator:alice")

	rec, body = do(t, h, http.MethodPost, "/api/lock/sudo-release", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["level"])
	assert.Equal(t, "normal_trade", body["label"])
}

func TestListActionsFromMemory(t *testing.T) {
	h := newTestServer(t, Config{}, permission.New(), nil, nil)

	rec, body := do(t, h, http.MethodGet, "/api/actions?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	acts := body["actions"].([]any)
	require.Len(t, acts, 2)
	assert.Equal(t, "d", acts[0].(map[string]any)["id"])
	assert.Equal(t, "c", acts[1].(map[string]any)["id"])

	rec, body = do(t, h, http.MethodGet, "/api/actions?since=2026-01-01T00:03:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["actions"].([]any), 2)

	rec, _ = do(t, h, http.MethodGet, "/api/actions?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/actions?run_id=other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAudit(t *testing.T) {
	h := newTestServer(t, Config{}, permission.New(), nil, nil)
	rec, body := do(t, h, http.MethodGet, "/api/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"].([]any), 1)

	// Archives are not configured.
	rec, _ = do(t, h, http.MethodGet, "/api/archives", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Config{RateLimit: 1, RateWindow: time.Second}, permission.New(), denyAll{}, nil)
	rec, _ := do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigins: []string{"https://ops.example"}, APIKey: "secret"}, permission.New(), nil, nil)
	rec, _ := do(t, h, http.MethodOptions, "/api/status", "", "Origin", "https://ops.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, h, http.MethodOptions, "/api/status", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
