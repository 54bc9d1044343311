// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package api exposes the HTTP control surface: operator login, session
// lifecycle control, statistics, Prometheus metrics, and the WebSocket alert
// feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/engine"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/websocket"
)

// IncidentReader serves historical incident queries.
type IncidentReader interface {
	Recent(sourceID string, limit int) ([]*dispatch.Incident, error)
}

// Server is the HTTP control API. Implements suture.Service.
type Server struct {
	cfg       config.ServerConfig
	manager   *engine.Manager
	authSvc   *auth.Service  // nil when auth is disabled
	incidents IncidentReader // nil when persistence is disabled
	hub       *websocket.Hub
	router    chi.Router
}

// NewServer assembles the API server and its routes. authSvc and incidents
// may be nil to run unauthenticated or without incident persistence.
func NewServer(cfg config.ServerConfig, manager *engine.Manager, authSvc *auth.Service, incidents IncidentReader, hub *websocket.Hub) *Server {
	s := &Server{
		cfg:       cfg,
		manager:   manager,
		authSvc:   authSvc,
		incidents: incidents,
		hub:       hub,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !s.cfg.RateLimitDisabled {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/alerts", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			if s.authSvc != nil {
				r.Use(s.authSvc.Middleware)
			}
			r.Route("/sources", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Route("/{sourceID}", func(r chi.Router) {
					r.Post("/start", s.handleStart)
					r.Post("/stop", s.handleStop)
					r.Post("/pause", s.handlePause)
					r.Post("/resume", s.handleResume)
					r.Get("/stats", s.handleStats)
					r.Get("/tracks", s.handleTracks)
					r.Get("/incidents", s.handleIncidents)
				})
			})
		})
	})

	return r
}

// Serve runs the HTTP server until the context is canceled, then shuts down
// gracefully. Implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http server shutdown failed")
		return err
	}
	logging.Info().Msg("http server stopped")
	return ctx.Err()
}

// requestMetrics records Prometheus counters and latency for every request.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(ww.Status()), time.Since(start))
	})
}

func mapEngineError(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionRunning):
		return http.StatusConflict
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
