// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package behavior runs the per-frame rule checks that turn a track's
// position history, carried-object sightings, and zone membership into risk
// events. Each rule emits at most one event per pass, gated by a per-type
// cooldown so a sustained behavior cannot flood the event list.
package behavior

import (
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/track"
	"github.com/kestrelsec/kestrel/internal/vision"
	"github.com/kestrelsec/kestrel/internal/zone"
)

// Rule cooldowns and thresholds.
const (
	intrusionCooldown = 60 * time.Second
	weaponWindow      = 30 * time.Second
	weaponCooldown    = 30 * time.Second
	loiteringCooldown = 60 * time.Second
	erraticCooldown   = 30 * time.Second
	runningCooldown   = 20 * time.Second

	loiteringSampleWindow = 10
	loiteringStepPx       = 10.0

	// carriedObjectMargin expands the person bbox before testing overlap
	// with a weapon-class detection.
	carriedObjectMargin = 20
)

// Severity seeds and confidences per rule.
const (
	intrusionCriticalSeed   = 15.0
	intrusionRestrictedSeed = 12.0
	intrusionConfidence     = 0.9

	armedPersonSeed = 20.0

	loiteringSeed       = 8.0
	loiteringConfidence = 0.8

	erraticSeed       = 6.0
	erraticConfidence = 0.7

	runningSeed       = 5.0
	runningConfidence = 0.8
)

// weaponClasses are the detector class labels treated as weapon-like when
// testing carried objects.
var weaponClasses = map[string]bool{
	"knife":    true,
	"gun":      true,
	"weapon":   true,
	"scissors": true,
	"bottle":   true,
}

// Config holds the per-session tunable thresholds.
type Config struct {
	// LoiteringThreshold is how long a stationary window must persist
	// before a loitering event is emitted.
	LoiteringThreshold time.Duration
}

// DefaultConfig returns the default analyzer thresholds.
func DefaultConfig() Config {
	return Config{LoiteringThreshold: 10 * time.Second}
}

// Analyzer evaluates behavior rules against tracks for one session.
type Analyzer struct {
	cfg   Config
	zones *zone.Set
}

// NewAnalyzer creates an analyzer bound to a session's zone set.
func NewAnalyzer(cfg Config, zones *zone.Set) *Analyzer {
	if cfg.LoiteringThreshold <= 0 {
		cfg.LoiteringThreshold = DefaultConfig().LoiteringThreshold
	}
	return &Analyzer{cfg: cfg, zones: zones}
}

// Analyze runs every rule against the track, appends the emitted events, and
// prunes events past the retention window. Returns the newly emitted events.
func (a *Analyzer) Analyze(tr *track.Track, now time.Time) []track.RiskEvent {
	var emitted []track.RiskEvent

	if e := a.checkIntrusion(tr, now); e != nil {
		emitted = append(emitted, *e)
	}
	if e := a.checkWeapons(tr, now); e != nil {
		emitted = append(emitted, *e)
	}
	if e := a.checkLoitering(tr, now); e != nil {
		emitted = append(emitted, *e)
	}
	if e := a.checkMovement(tr, now); e != nil {
		emitted = append(emitted, *e)
	}

	for _, e := range emitted {
		tr.AddEvent(e)
	}
	tr.PruneEvents(now)
	return emitted
}

// RecordCarriedObjects appends a sighting for every weapon-class detection
// in the current frame whose bounding box overlaps the track's last known
// bbox, expanded by a fixed margin.
func (a *Analyzer) RecordCarriedObjects(tr *track.Track, detections []vision.Detection, now time.Time) {
	bbox, ok := tr.LastBBox()
	if !ok {
		return
	}
	expanded := bbox.Expand(carriedObjectMargin)

	for _, d := range detections {
		if !weaponClasses[d.Class] {
			continue
		}
		if !expanded.Overlaps(d.BBox) {
			continue
		}
		tr.AddSighting(track.Sighting{
			Class:      d.Class,
			Confidence: d.Confidence,
			Time:       now,
		})
		logging.Warn().
			Int("track_id", tr.ID()).
			Str("object", d.Class).
			Float64("confidence", d.Confidence).
			Msg("weapon-class object detected near track")
	}
}

func (a *Analyzer) checkIntrusion(tr *track.Track, now time.Time) *track.RiskEvent {
	pos, ok := tr.LastPosition()
	if !ok || a.zones == nil {
		return nil
	}
	for _, z := range a.zones.Zones {
		if !z.Access.Restricted() || !z.Contains(pos) {
			continue
		}
		if tr.HasEventSince(track.EventIntrusion, now, intrusionCooldown) {
			return nil
		}
		seed := intrusionRestrictedSeed
		if z.Access == zone.AccessCritical {
			seed = intrusionCriticalSeed
		}
		return &track.RiskEvent{
			Type:        track.EventIntrusion,
			Score:       seed,
			Confidence:  intrusionConfidence,
			Time:        now,
			Location:    pos,
			Description: fmt.Sprintf("Unauthorized access to %s", z.Name),
		}
	}
	return nil
}

func (a *Analyzer) checkWeapons(tr *track.Track, now time.Time) *track.RiskEvent {
	sightings := tr.SightingsSince(now, weaponWindow)
	if len(sightings) == 0 {
		return nil
	}
	if tr.HasEventSince(track.EventArmedPerson, now, weaponCooldown) {
		return nil
	}

	maxConfidence := sightings[0].Confidence
	weaponType := sightings[0].Class
	for _, s := range sightings[1:] {
		if s.Confidence > maxConfidence {
			maxConfidence = s.Confidence
		}
	}

	pos, _ := tr.LastPosition()
	return &track.RiskEvent{
		Type:        track.EventArmedPerson,
		Score:       armedPersonSeed,
		Confidence:  maxConfidence,
		Time:        now,
		Location:    pos,
		Description: fmt.Sprintf("Weapon detected: %s (conf: %.2f)", weaponType, maxConfidence),
	}
}

func (a *Analyzer) checkLoitering(tr *track.Track, now time.Time) *track.RiskEvent {
	if tr.PositionCount() < loiteringSampleWindow {
		return nil
	}

	avg := tr.RecentStepAverage(loiteringSampleWindow)
	if avg >= loiteringStepPx {
		// Movement resumed, the stationary window resets immediately.
		tr.ClearStationary()
		return nil
	}

	tr.MarkStationary(now)
	since, _ := tr.StationarySince()
	elapsed := now.Sub(since)
	if elapsed < a.cfg.LoiteringThreshold {
		return nil
	}
	if tr.HasEventSince(track.EventLoitering, now, loiteringCooldown) {
		return nil
	}

	pos, _ := tr.LastPosition()
	return &track.RiskEvent{
		Type:        track.EventLoitering,
		Score:       loiteringSeed,
		Confidence:  loiteringConfidence,
		Time:        now,
		Duration:    elapsed,
		Location:    pos,
		Description: fmt.Sprintf("Loitering for %.0f seconds", elapsed.Seconds()),
	}
}

func (a *Analyzer) checkMovement(tr *track.Track, now time.Time) *track.RiskEvent {
	pos, _ := tr.LastPosition()

	switch tr.MovementPattern() {
	case track.PatternErratic:
		if tr.HasEventSince(track.EventErratic, now, erraticCooldown) {
			return nil
		}
		return &track.RiskEvent{
			Type:        track.EventErratic,
			Score:       erraticSeed,
			Confidence:  erraticConfidence,
			Time:        now,
			Location:    pos,
			Description: "Erratic movement pattern detected",
		}
	case track.PatternRunning:
		if tr.HasEventSince(track.EventRunning, now, runningCooldown) {
			return nil
		}
		return &track.RiskEvent{
			Type:        track.EventRunning,
			Score:       runningSeed,
			Confidence:  runningConfidence,
			Time:        now,
			Location:    pos,
			Description: "Fast movement detected",
		}
	}
	return nil
}
