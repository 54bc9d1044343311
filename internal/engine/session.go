// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package engine runs the per-source analysis pipeline and the session
// manager that supervises it. A Session consumes frames from one video
// source, feeds them through detection, tracking, behavior analysis, and
// risk scoring, and hands incidents and alerts to the manager's sinks.
package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/kestrelsec/kestrel/internal/behavior"
	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/risk"
	"github.com/kestrelsec/kestrel/internal/track"
	"github.com/kestrelsec/kestrel/internal/vision"
	"github.com/kestrelsec/kestrel/internal/zone"
)

// Pipeline bundles the per-source frame input and perception stages.
type Pipeline struct {
	Source   vision.FrameSource
	Detector vision.Detector
	Tracker  vision.Tracker
}

// Session timing constants.
const (
	// evictInterval is how often inactive tracks are removed.
	evictInterval = 5 * time.Second

	// trackerResetInterval is how often the tracker's ID assignment state
	// is reset to stop unbounded ID growth on long runs.
	trackerResetInterval = 300 * time.Second

	// pausePollInterval bounds how quickly a paused session notices a
	// resume or shutdown.
	pausePollInterval = 50 * time.Millisecond

	// fpsWindow is the number of frame timestamps kept for the FPS
	// estimate.
	fpsWindow = 30
)

// Config holds per-session tunables.
type Config struct {
	Behavior behavior.Config
	Dispatch dispatch.Config

	// MaxFPS caps the frame processing rate. Zero or negative means
	// unpaced.
	MaxFPS float64
}

// Session is the analysis pipeline for one video source. Serve implements
// suture.Service; all pipeline state is owned by the serve goroutine, with a
// snapshot published under a lock for the control API.
type Session struct {
	sourceID   string
	pipeline   Pipeline
	zones      *zone.Set
	store      *track.Store
	analyzer   *behavior.Analyzer
	calculator *risk.Calculator
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter

	incidents chan<- *dispatch.Incident
	alerts    chan<- *dispatch.Alert

	paused  chan bool // buffered(1) pause/resume requests
	mu      sync.RWMutex
	stats   Stats
	running bool
}

// NewSession creates a session for one source. The incident and alert
// channels are owned by the manager; sends never block.
func NewSession(
	sourceID string,
	cfg Config,
	pipeline Pipeline,
	zones *zone.Set,
	incidents chan<- *dispatch.Incident,
	alerts chan<- *dispatch.Alert,
) *Session {
	limit := rate.Inf
	if cfg.MaxFPS > 0 {
		limit = rate.Limit(cfg.MaxFPS)
	}
	return &Session{
		sourceID:   sourceID,
		pipeline:   pipeline,
		zones:      zones,
		store:      track.NewStore(),
		analyzer:   behavior.NewAnalyzer(cfg.Behavior, zones),
		calculator: risk.NewCalculator(),
		dispatcher: dispatch.NewDispatcher(cfg.Dispatch, sourceID),
		limiter:    rate.NewLimiter(limit, 1),
		incidents:  incidents,
		alerts:     alerts,
		paused:     make(chan bool, 1),
		stats:      Stats{SourceID: sourceID, ZoneCount: zones.Len()},
	}
}

// SourceID returns the source this session analyzes.
func (s *Session) SourceID() string { return s.sourceID }

// Pause requests that frame processing stop without tearing the session
// down. Idempotent.
func (s *Session) Pause() { s.requestPause(true) }

// Resume requests that a paused session continue. Idempotent.
func (s *Session) Resume() { s.requestPause(false) }

func (s *Session) requestPause(paused bool) {
	// Collapse a stale unconsumed request so only the latest wins.
	select {
	case <-s.paused:
	default:
	}
	s.paused <- paused
}

// Stats returns the most recent statistics snapshot.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.clone()
}

// Serve runs the frame loop until the context is canceled or the source is
// exhausted. Implements suture.Service; a drained source returns
// ErrDoNotRestart so the supervisor retires the session instead of
// restarting it.
func (s *Session) Serve(ctx context.Context) error {
	logging.Info().Str("source", s.sourceID).Msg("session started")
	s.setRunning(true)
	defer s.setRunning(false)
	defer func() {
		if err := s.pipeline.Source.Close(); err != nil {
			logging.Error().Err(err).Str("source", s.sourceID).Msg("failed to close frame source")
		}
	}()

	frameTimes := make([]time.Time, 0, fpsWindow)
	// Maintenance cadence runs on frame time, which for replayed captures
	// can be far from the wall clock. Baselines are seeded from the first
	// frame so both sides of the comparison use the same clock.
	var lastEvict, lastTrackerReset time.Time
	paused := false

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("source", s.sourceID).Msg("session stopping")
			return ctx.Err()
		case paused = <-s.paused:
			s.setPaused(paused)
		default:
		}

		if paused {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case paused = <-s.paused:
				s.setPaused(paused)
			case <-time.After(pausePollInterval):
			}
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		frame, err := s.pipeline.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logging.Info().Str("source", s.sourceID).Msg("frame source exhausted")
				return suture.ErrDoNotRestart
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Error().Err(err).Str("source", s.sourceID).Msg("failed to read frame")
			continue
		}

		start := time.Now()
		now := frame.Time
		if now.IsZero() {
			now = start
		}
		if lastEvict.IsZero() {
			lastEvict = now
			lastTrackerReset = now
		}

		s.processFrame(ctx, frame, now)
		metrics.RecordFrame(s.sourceID, time.Since(start))

		if now.Sub(lastEvict) >= evictInterval {
			removed := s.store.Evict(now)
			metrics.TracksEvicted.WithLabelValues(s.sourceID).Add(float64(removed))
			lastEvict = now
		}
		if now.Sub(lastTrackerReset) >= trackerResetInterval {
			if err := s.pipeline.Tracker.Reset(); err != nil {
				logging.Error().Err(err).Str("source", s.sourceID).Msg("tracker reset failed")
			} else {
				logging.Debug().Str("source", s.sourceID).Msg("tracker state reset")
			}
			lastTrackerReset = now
		}

		frameTimes = appendBounded(frameTimes, start, fpsWindow)
		s.publishStats(now, frameTimes)
	}
}

// processFrame runs one frame through detection, tracking, behavior rules,
// scoring, and dispatch. Perception failures degrade to an empty result for
// the frame rather than killing the session.
func (s *Session) processFrame(ctx context.Context, frame *vision.Frame, now time.Time) {
	detections, err := s.pipeline.Detector.Detect(ctx, frame)
	if err != nil {
		metrics.DetectionErrors.WithLabelValues(s.sourceID, "detect").Inc()
		logging.Error().Err(err).Str("source", s.sourceID).Int64("frame", frame.Seq).Msg("detector failed")
		detections = nil
	}

	persons := detections[:0:0]
	for _, d := range detections {
		if d.Class == vision.ClassPerson {
			persons = append(persons, d)
		}
	}

	observations, err := s.pipeline.Tracker.Update(persons, frame)
	if err != nil {
		metrics.DetectionErrors.WithLabelValues(s.sourceID, "track").Inc()
		logging.Error().Err(err).Str("source", s.sourceID).Int64("frame", frame.Seq).Msg("tracker failed")
		return
	}
	s.store.Update(observations, now)

	for _, tr := range s.store.Active(now) {
		s.analyzeTrack(tr, detections, now)
	}
}

// analyzeTrack evaluates one track. A panic in the rule or scoring path is
// contained to this track so the rest of the frame still processes.
func (s *Session) analyzeTrack(tr *track.Track, detections []vision.Detection, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("source", s.sourceID).
				Int("track_id", tr.ID()).
				Interface("panic", r).
				Msg("track analysis panicked")
		}
	}()

	s.analyzer.RecordCarriedObjects(tr, detections, now)

	for _, e := range s.analyzer.Analyze(tr, now) {
		metrics.RiskEventsEmitted.WithLabelValues(s.sourceID, string(e.Type)).Inc()
		logging.Info().
			Str("source", s.sourceID).
			Int("track_id", tr.ID()).
			Str("event_type", string(e.Type)).
			Float64("confidence", e.Confidence).
			Msg("risk event")
	}

	score, primary := s.calculator.Score(tr, now)
	incident, alert := s.dispatcher.Evaluate(tr, score, primary, now)

	if incident != nil {
		metrics.IncidentsRecorded.WithLabelValues(s.sourceID).Inc()
		select {
		case s.incidents <- incident:
		default:
			metrics.SinkDrops.WithLabelValues(s.sourceID, "incident").Inc()
			logging.Warn().Str("source", s.sourceID).Msg("incident sink full, dropping incident")
		}
	}
	if alert != nil {
		metrics.AlertsRaised.WithLabelValues(s.sourceID, string(alert.Level)).Inc()
		select {
		case s.alerts <- alert:
		default:
			metrics.SinkDrops.WithLabelValues(s.sourceID, "alert").Inc()
			logging.Warn().Str("source", s.sourceID).Msg("alert sink full, dropping alert")
		}
	}
}

func (s *Session) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.stats.Running = running
	if !running {
		s.stats.Paused = false
	}
	s.mu.Unlock()
}

func (s *Session) setPaused(paused bool) {
	s.mu.Lock()
	s.stats.Paused = paused
	s.mu.Unlock()
	if paused {
		logging.Info().Str("source", s.sourceID).Msg("session paused")
	} else {
		logging.Info().Str("source", s.sourceID).Msg("session resumed")
	}
}

func appendBounded(times []time.Time, t time.Time, limit int) []time.Time {
	times = append(times, t)
	if len(times) > limit {
		times = times[1:]
	}
	return times
}
