// Package server exposes the run to operators over HTTP: health, status,
// the action journal, the audit log, archives, Prometheus metrics and
// manual control of the permission lock.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/server/handler"
	"github.com/alanyoungcy/polytrader/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil optional
// handlers leave their routes unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Lock    *handler.LockHandler
	Actions *handler.ActionsHandler

	Audit    *handler.AuditHandler    // optional
	Archives *handler.ArchivesHandler // optional
	Metrics  http.Handler             // optional
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// wraps it in the middleware chain (rate limit, auth, logging, CORS).
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// Unauthenticated.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/actions", handlers.Actions.ListActions)

	mux.HandleFunc("GET /api/lock", handlers.Lock.GetLock)
	mux.HandleFunc("POST /api/lock", handlers.Lock.PutLock)
	mux.HandleFunc("POST /api/lock/sudo-release", handlers.Lock.SudoReleaseAll)
	mux.HandleFunc("DELETE /api/lock/{owner}", handlers.Lock.ReleaseLock)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
