// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement is handled by the CORS middleware configuration;
	// the feed carries no credentials beyond the bearer token.
	CheckOrigin: func(*http.Request) bool { return true },
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authSvc == nil {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiry, err := s.authSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logging.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiry})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.manager.Start(r.Context(), sourceID); err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "source_id": sourceID})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.manager.Stop(sourceID); err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "source_id": sourceID})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.manager.Pause(sourceID); err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "source_id": sourceID})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.manager.Resume(sourceID); err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed", "source_id": sourceID})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	stats, err := s.manager.Stats(sourceID)
	if err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	tracks, err := s.manager.TrackSummaries(sourceID)
	if err != nil {
		writeError(w, mapEngineError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if s.incidents == nil {
		writeError(w, http.StatusNotFound, "incident persistence is disabled")
		return
	}
	sourceID := chi.URLParam(r, "sourceID")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = parsed
	}

	incidents, err := s.incidents.Recent(sourceID, limit)
	if err != nil {
		logging.Error().Err(err).Str("source", sourceID).Msg("incident query failed")
		writeError(w, http.StatusInternalServerError, "incident query failed")
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebSocket upgrades the connection and registers the client with the
// hub. Browsers cannot set an Authorization header on a WebSocket handshake,
// so an enabled auth service accepts the token as a query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.authSvc != nil {
		token := r.URL.Query().Get("token")
		if _, err := s.authSvc.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.hub, conn)
	s.hub.Register <- client
	client.Start()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
