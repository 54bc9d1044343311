// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/track"
)

// Default score thresholds.
const (
	DefaultAlertThreshold    = 20.0
	DefaultCriticalThreshold = 40.0
)

// Config holds the dispatcher score thresholds.
type Config struct {
	// AlertThreshold is the minimum risk score for a track to produce an
	// incident record.
	AlertThreshold float64
	// CriticalThreshold is the minimum risk score for alerts to carry
	// CRITICAL severity instead of HIGH.
	CriticalThreshold float64
}

// DefaultConfig returns the default dispatcher thresholds.
func DefaultConfig() Config {
	return Config{
		AlertThreshold:    DefaultAlertThreshold,
		CriticalThreshold: DefaultCriticalThreshold,
	}
}

// Dispatcher applies the incident/alert policy for one source.
type Dispatcher struct {
	cfg      Config
	sourceID string
}

// NewDispatcher creates a dispatcher for the given source.
func NewDispatcher(cfg Config, sourceID string) *Dispatcher {
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	return &Dispatcher{cfg: cfg, sourceID: sourceID}
}

// Evaluate applies one frame's risk evaluation for a track.
//
// A score at or above the alert threshold always yields an incident and
// updates the track status. An alert is produced only when the primary
// threat differs from the last threat the operator was notified about, which
// collapses a sustained condition into a single alert. Below the threshold
// the notification state resets silently so the next occurrence of the same
// threat alerts again.
func (d *Dispatcher) Evaluate(tr *track.Track, score float64, primary track.EventType, now time.Time) (*Incident, *Alert) {
	if score < d.cfg.AlertThreshold || primary == track.ThreatNormal {
		tr.SetStatus(track.ThreatNormal)
		tr.SetLastNotifiedThreat(track.ThreatNormal)
		return nil, nil
	}

	tr.SetStatus(primary)
	location, _ := tr.LastPosition()

	incident := &Incident{
		ID:            uuid.New(),
		SourceID:      d.sourceID,
		TrackID:       tr.ID(),
		Time:          now,
		RiskScore:     score,
		PrimaryThreat: primary,
		Location:      location,
		EventTypes: lo.Map(tr.Events(), func(e track.RiskEvent, _ int) track.EventType {
			return e.Type
		}),
		Path: tr.Positions(),
	}

	var alert *Alert
	if primary != tr.LastNotifiedThreat() {
		level := AlertHigh
		if score >= d.cfg.CriticalThreshold {
			level = AlertCritical
		}
		alert = &Alert{
			ID:        uuid.New(),
			Level:     level,
			SourceID:  d.sourceID,
			TrackID:   tr.ID(),
			RiskScore: score,
			Threat:    primary,
			Location:  location,
			Time:      now,
		}
		tr.SetLastNotifiedThreat(primary)
		logging.Warn().
			Str("source", d.sourceID).
			Int("track_id", tr.ID()).
			Str("level", string(level)).
			Str("threat", string(primary)).
			Float64("risk_score", score).
			Msg("security alert raised")
	}

	return incident, alert
}
