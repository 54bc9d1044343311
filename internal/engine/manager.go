// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/zone"
)

// Sentinel errors for the session control surface.
var (
	ErrSessionRunning  = errors.New("session already running")
	ErrSessionNotFound = errors.New("session not found")
)

// sink channel capacities. Sends are non-blocking; a full channel drops.
const (
	incidentSinkBuffer = 256
	alertSinkBuffer    = 64
)

// Broadcaster pushes engine output to WebSocket subscribers.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// IncidentStore persists incident records. Implementations must be safe for
// concurrent use.
type IncidentStore interface {
	SaveIncident(ctx context.Context, incident *dispatch.Incident) error
}

// PipelineFactory builds the perception pipeline for a source when its
// session starts.
type PipelineFactory func(ctx context.Context, sourceID string) (Pipeline, error)

// Manager owns every analysis session and the shared output sinks. Sessions
// run under a suture supervisor so a panicking session restarts with backoff
// instead of taking the process down.
type Manager struct {
	cfg        Config
	zones      zone.FileConfig
	factory    PipelineFactory
	supervisor *suture.Supervisor

	incidents chan *dispatch.Incident
	alerts    chan *dispatch.Alert

	mu        sync.Mutex
	sessions  map[string]*managedSession
	notifiers []dispatch.Notifier
	caster    Broadcaster
	store     IncidentStore
}

type managedSession struct {
	session *Session
	token   suture.ServiceToken
}

// NewManager creates a manager with the given per-session defaults and zone
// configuration.
func NewManager(cfg Config, zones zone.FileConfig, factory PipelineFactory) *Manager {
	supervisor := suture.New("kestrel-engine", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().
				Interface("details", e.Map()).
				Msg(e.String())
		},
	})

	m := &Manager{
		cfg:        cfg,
		zones:      zones,
		factory:    factory,
		supervisor: supervisor,
		incidents:  make(chan *dispatch.Incident, incidentSinkBuffer),
		alerts:     make(chan *dispatch.Alert, alertSinkBuffer),
		sessions:   make(map[string]*managedSession),
	}
	supervisor.Add(&sinkPump{manager: m})
	return m
}

// RegisterNotifier adds an alert notifier.
func (m *Manager) RegisterNotifier(n dispatch.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// SetBroadcaster sets the WebSocket broadcaster for engine output.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caster = b
}

// SetIncidentStore sets the incident persistence backend.
func (m *Manager) SetIncidentStore(s IncidentStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s
}

// Serve runs the supervisor tree until the context is canceled. Implements
// suture.Service so the manager can itself be supervised.
func (m *Manager) Serve(ctx context.Context) error {
	return m.supervisor.Serve(ctx)
}

// Start creates and supervises a session for the source. Returns
// ErrSessionRunning when one already exists.
func (m *Manager) Start(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sourceID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionRunning, sourceID)
	}

	pipeline, err := m.factory(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("build pipeline for %s: %w", sourceID, err)
	}

	zoneSet := m.zoneSetFor(sourceID)
	session := NewSession(sourceID, m.cfg, pipeline, zoneSet, m.incidents, m.alerts)
	token := m.supervisor.Add(session)
	m.sessions[sourceID] = &managedSession{session: session, token: token}

	logging.Info().
		Str("source", sourceID).
		Int("zones", zoneSet.Len()).
		Msg("monitoring session started")
	return nil
}

// Stop removes the source's session from supervision and waits for it to
// terminate.
func (m *Manager) Stop(sourceID string) error {
	m.mu.Lock()
	ms, ok := m.sessions[sourceID]
	if ok {
		delete(m.sessions, sourceID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	if err := m.supervisor.RemoveAndWait(ms.token, 10*time.Second); err != nil {
		return fmt.Errorf("stop session %s: %w", sourceID, err)
	}
	logging.Info().Str("source", sourceID).Msg("monitoring session stopped")
	return nil
}

// Pause suspends frame processing for the source.
func (m *Manager) Pause(sourceID string) error {
	ms, ok := m.lookup(sourceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	ms.session.Pause()
	return nil
}

// Resume continues a paused session.
func (m *Manager) Resume(sourceID string) error {
	ms, ok := m.lookup(sourceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	ms.session.Resume()
	return nil
}

// Stats returns the statistics snapshot for one source.
func (m *Manager) Stats(sourceID string) (Stats, error) {
	ms, ok := m.lookup(sourceID)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	return ms.session.Stats(), nil
}

// TrackSummaries returns per-track summaries for one source.
func (m *Manager) TrackSummaries(sourceID string) ([]TrackSummary, error) {
	ms, ok := m.lookup(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	return ms.session.ActiveTrackSummaries(time.Now()), nil
}

// Status returns the statistics snapshots of every session, keyed by source.
func (m *Manager) Status() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.sessions))
	for id, ms := range m.sessions {
		out[id] = ms.session.Stats()
	}
	return out
}

func (m *Manager) lookup(sourceID string) (*managedSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[sourceID]
	return ms, ok
}

func (m *Manager) zoneSetFor(sourceID string) *zone.Set {
	if src, ok := m.zones[sourceID]; ok {
		return src.Build(sourceID)
	}
	logging.Warn().Str("source", sourceID).Msg("no zone configuration for source")
	return &zone.Set{}
}

// sinkPump drains the shared incident and alert channels: incidents are
// persisted and broadcast, alerts additionally fan out to the notifiers.
// Runs as its own supervised service so a notifier hang or crash never backs
// up into the frame loops.
type sinkPump struct {
	manager *Manager
}

// Serve implements suture.Service.
func (p *sinkPump) Serve(ctx context.Context) error {
	m := p.manager
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case incident := <-m.incidents:
			p.handleIncident(ctx, incident)
		case alert := <-m.alerts:
			p.handleAlert(ctx, alert)
		}
	}
}

func (p *sinkPump) handleIncident(ctx context.Context, incident *dispatch.Incident) {
	m := p.manager
	m.mu.Lock()
	caster, store := m.caster, m.store
	m.mu.Unlock()

	if store != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := store.SaveIncident(saveCtx, incident); err != nil {
			logging.Error().Err(err).Str("source", incident.SourceID).Msg("failed to save incident")
		}
		cancel()
	}
	if caster != nil {
		caster.BroadcastJSON("incident", incident)
	}
}

func (p *sinkPump) handleAlert(ctx context.Context, alert *dispatch.Alert) {
	m := p.manager
	m.mu.Lock()
	notifiers := make([]dispatch.Notifier, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	caster := m.caster
	m.mu.Unlock()

	for _, notifier := range notifiers {
		go func(n dispatch.Notifier) {
			if err := n.Send(ctx, alert); err != nil {
				logging.Error().Err(err).Str("notifier", n.Name()).Msg("failed to send alert")
			}
		}(notifier)
	}
	if caster != nil {
		caster.BroadcastJSON("alert", alert)
	}
}
