// Package server exposes one environment to any number of live
// front-ends at once: a WebSocket endpoint speaking the {type, payload}
// envelope, a read-only REST surface, and a Prometheus /metrics
// endpoint, all mounted on a chi router with optional bearer-token
// auth in front.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/maintenance"
)

// Config tunes the server.
type Config struct {
	// Addr is the listen address, e.g. ":8420".
	Addr string

	// Auth enables JWT bearer validation on every endpoint when
	// JWKSURL is non-empty; disabled otherwise.
	Auth AuthConfig

	// OutboxSoftCap bounds each WS client's droppable frame backlog.
	OutboxSoftCap int

	// WriteTimeout caps a single WS frame write.
	WriteTimeout time.Duration

	// Rollups, when set, serves the maintenance job's cached per-root
	// usage totals at /api/usage/rollups.
	Rollups *maintenance.Runner
}

// Server hosts the WS + REST surface for one environment.
type Server struct {
	env       *environment.Environment
	cfg       Config
	validator *JWTValidator
	hub       *hub
	httpSrv   *http.Server
}

// New builds a Server for env. When cfg.Auth.JWKSURL is set the
// validator is constructed eagerly so a bad auth configuration fails
// at boot, not on the first request.
func New(env *environment.Environment, cfg Config) (*Server, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &Server{env: env, cfg: cfg}
	if cfg.Auth.JWKSURL != "" {
		v, err := NewJWTValidator(cfg.Auth)
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	s.hub = newHub(env, cfg)
	return s, nil
}

// Handler assembles the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.validator != nil {
		r.Use(s.validator.Middleware)
	}

	r.Get("/ws", s.hub.handleWS)
	r.Handle("/metrics", promhttp.HandlerFor(s.env.Metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/environment", s.handleEnvironmentInfo)
		r.Get("/pos", s.handleListPOs)
		r.Get("/pos/{name}", s.handleGetPO)
		r.Get("/pos/{name}/sessions", s.handleListPOSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/events", s.handleEventsSince)
		if s.cfg.Rollups != nil {
			r.Get("/usage/rollups", s.handleUsageRollups)
		}
	})

	return r
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()
	slog.Info("server listening", "addr", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
