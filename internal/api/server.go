// Package api exposes a replay run's results over HTTP: a point-in-time
// report, a live snapshot stream, Prometheus metrics, and a health check.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/internal/auth"
	"github.com/bikeshrana/pmbacktest/internal/config"
	"github.com/bikeshrana/pmbacktest/internal/metrics"
	appmw "github.com/bikeshrana/pmbacktest/internal/middleware"
	"github.com/bikeshrana/pmbacktest/internal/report"
)

// ReportSource produces the current performance report on demand. cmd/serve
// supplies this from a report.Calculator built over the replay's closed
// trades and snapshots once the run returns; it does not recompute the report
// while the run is in progress.
type ReportSource func() report.Result

// Server wraps the HTTP control and reporting surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	hub    *Hub
	logger zerolog.Logger
}

// Deps bundles the collaborators Server's handlers read from.
type Deps struct {
	Report     ReportSource
	Metrics    *metrics.ReplayMetrics
	Auth       *auth.JWTService
	HealthPing func(ctx context.Context) error
}

// NewServer builds the router and handlers. deps.HealthPing may be nil when
// running without a results store.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api").Logger()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware(log, deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(appmw.NewRateLimiter(cfg.RateLimit, log).Limit)

	hub := newHub(log)

	r.Get("/healthz", healthHandler(deps.HealthPing))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if deps.Auth != nil {
		authMW := auth.NewAuthMiddleware(deps.Auth, log)
		viewerOnly := authMW.RequireRole("viewer", "admin")
		r.Post("/auth/token", issueTokenHandler(deps.Auth))
		r.With(authMW.Authenticate, viewerOnly).Get("/report", reportHandler(deps.Report))
		r.With(authMW.Authenticate, viewerOnly).Get("/snapshots/stream", hub.ServeWS)
	} else {
		r.Get("/report", reportHandler(deps.Report))
		r.Get("/snapshots/stream", hub.ServeWS)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{router: r, server: httpServer, hub: hub, logger: log}
}

// Hub returns the snapshot broadcaster, which also implements replay.Sink so
// it can be wired alongside a results store via Tee.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown server: %w", err)
	}
	return nil
}

// loggingMiddleware logs every request and, when m is non-nil, also feeds
// its method/path/status/duration into HTTPRequestsTotal/HTTPRequestDuration.
func loggingMiddleware(logger zerolog.Logger, m *metrics.ReplayMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", duration).
				Msg("http request")

			if m != nil {
				status := strconv.Itoa(ww.Status())
				m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
			}
		})
	}
}
