// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package track maintains bounded per-person temporal state for the
// risk-analytics engine: position history, carried-object sightings, and
// active risk events, plus the derived movement statistics the behavior
// rules and risk scoring consume.
package track

import (
	"math"
	"time"

	"github.com/kestrelsec/kestrel/internal/vision"
)

// EventType tags a risk event with its behavioral category.
type EventType string

const (
	EventIntrusion      EventType = "intrusion"
	EventArmedPerson    EventType = "armed_person"
	EventLoitering      EventType = "suspicious_loitering"
	EventErratic        EventType = "erratic_movement"
	EventRunning        EventType = "running"
	EventGroupFormation EventType = "group_formation"

	// ThreatNormal is the absence of a threat, used for the primary-threat
	// label and the notification dedup state.
	ThreatNormal EventType = "normal"
)

// RiskEvent is a single timestamped behavioral occurrence on a track.
// Immutable once created: appended by the behavior analyzer, read by risk
// scoring, and discarded by the retention prune. Never mutated.
type RiskEvent struct {
	Type        EventType     `json:"event_type"`
	Score       float64       `json:"risk_score"`
	Confidence  float64       `json:"confidence"`
	Time        time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration,omitempty"`
	Location    vision.Point  `json:"location"`
	Description string        `json:"description,omitempty"`
}

// Sighting is one carried-object observation associated with a track.
type Sighting struct {
	Class      string    `json:"object"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"timestamp"`
}

// Pattern is the categorical movement classification of a track.
type Pattern string

const (
	PatternInsufficientData Pattern = "insufficient_data"
	PatternStationary       Pattern = "stationary"
	PatternRunning          Pattern = "running"
	PatternErratic          Pattern = "erratic"
	PatternLinear           Pattern = "linear"
	PatternNormal           Pattern = "normal"
)

// History capacities and lifecycle windows.
const (
	positionHistoryCap = 30
	sightingHistoryCap = 10

	// EventRetention is how long risk events stay on a track before the
	// analyzer prunes them.
	EventRetention = 600 * time.Second

	// ActiveWindow is the recency bound for a track to count as active.
	// Inactive tracks are ignored by scoring and statistics but survive
	// until the slower eviction pass removes them.
	ActiveWindow = 5 * time.Second

	// EvictAfter is the inactivity bound for removing a track entirely.
	EvictAfter = 30 * time.Second
)

// Movement classification thresholds. Fixed constants, not per-camera
// configuration.
const (
	minPatternSamples  = 5
	stationarySpeedPx  = 5.0  // px/s
	runningSpeedPx     = 50.0 // px/s
	erraticChangeRate  = 0.3
	linearChangeRate   = 0.1
	directionThreshold = math.Pi / 4
)

type timedPoint struct {
	pos vision.Point
	t   time.Time
}

// Track is the bounded temporal state for one tracked person. The Store owns
// every Track exclusively; other components interact with tracks only within
// the frame loop or through copied snapshots.
type Track struct {
	id int

	positions ring[timedPoint]
	sightings ring[Sighting]
	events    []RiskEvent

	firstSeen time.Time
	lastSeen  time.Time
	lastBBox  vision.Rect
	hasBBox   bool

	stationarySince    time.Time
	stationary         bool
	lastNotifiedThreat EventType
	status             EventType
}

func newTrack(id int, now time.Time) *Track {
	return &Track{
		id:                 id,
		positions:          newRing[timedPoint](positionHistoryCap),
		sightings:          newRing[Sighting](sightingHistoryCap),
		firstSeen:          now,
		lastSeen:           now,
		lastNotifiedThreat: ThreatNormal,
		status:             ThreatNormal,
	}
}

// ID returns the externally assigned track identifier.
func (t *Track) ID() int { return t.id }

// AddPosition appends a position sample and refreshes last-seen state.
func (t *Track) AddPosition(pos vision.Point, now time.Time, bbox vision.Rect) {
	t.positions.push(timedPoint{pos: pos, t: now})
	t.lastSeen = now
	t.lastBBox = bbox
	t.hasBBox = true
}

// LastSeen returns the time of the most recent position sample, or the
// creation time for a track that never received one.
func (t *Track) LastSeen() time.Time { return t.lastSeen }

// ActiveAt reports whether the track was seen within the active window.
func (t *Track) ActiveAt(now time.Time) bool {
	return now.Sub(t.lastSeen) < ActiveWindow
}

// LastBBox returns the most recent bounding box, if any position was added.
func (t *Track) LastBBox() (vision.Rect, bool) {
	return t.lastBBox, t.hasBBox
}

// LastPosition returns the most recent position sample.
func (t *Track) LastPosition() (vision.Point, bool) {
	tp, ok := t.positions.last()
	return tp.pos, ok
}

// Positions returns the retained position path oldest-first.
func (t *Track) Positions() []vision.Point {
	pts := make([]vision.Point, t.positions.len())
	for i := range pts {
		pts[i] = t.positions.at(i).pos
	}
	return pts
}

// PositionCount returns the number of retained position samples.
func (t *Track) PositionCount() int { return t.positions.len() }

// Speed returns the average speed in px/s over the retained position
// history: total Euclidean path length over total elapsed time. Zero when
// fewer than 2 samples exist or no time elapsed between them.
func (t *Track) Speed() float64 {
	n := t.positions.len()
	if n < 2 {
		return 0
	}
	var totalDistance, totalTime float64
	for i := 1; i < n; i++ {
		prev, curr := t.positions.at(i-1), t.positions.at(i)
		dt := curr.t.Sub(prev.t).Seconds()
		if dt <= 0 {
			continue
		}
		dx := float64(curr.pos.X - prev.pos.X)
		dy := float64(curr.pos.Y - prev.pos.Y)
		totalDistance += math.Hypot(dx, dy)
		totalTime += dt
	}
	if totalTime <= 0 {
		return 0
	}
	return totalDistance / totalTime
}

// MovementPattern classifies the track's recent movement from speed and
// turn-angle statistics. Requires at least 5 samples. The direction-change
// rate counts consecutive heading deltas (wrapped to [0, pi]) above pi/4,
// over the retained sample count.
func (t *Track) MovementPattern() Pattern {
	n := t.positions.len()
	if n < minPatternSamples {
		return PatternInsufficientData
	}

	speed := t.Speed()
	directionChanges := 0
	for i := 2; i < n; i++ {
		p0, p1, p2 := t.positions.at(i-2).pos, t.positions.at(i-1).pos, t.positions.at(i).pos
		prevAngle := math.Atan2(float64(p1.Y-p0.Y), float64(p1.X-p0.X))
		currAngle := math.Atan2(float64(p2.Y-p1.Y), float64(p2.X-p1.X))
		diff := math.Abs(currAngle - prevAngle)
		if diff > math.Pi {
			diff = 2*math.Pi - diff
		}
		if diff > directionThreshold {
			directionChanges++
		}
	}
	changeRate := float64(directionChanges) / float64(n)

	switch {
	case speed < stationarySpeedPx:
		return PatternStationary
	case speed > runningSpeedPx:
		return PatternRunning
	case changeRate > erraticChangeRate:
		return PatternErratic
	case changeRate < linearChangeRate:
		return PatternLinear
	default:
		return PatternNormal
	}
}

// RecentStepAverage returns the average consecutive-step movement in pixels
// over the last window samples. Used by the loitering rule.
func (t *Track) RecentStepAverage(window int) float64 {
	n := t.positions.len()
	if n < 2 || window < 2 {
		return 0
	}
	start := n - window
	if start < 0 {
		start = 0
	}
	count := n - start
	var total float64
	for i := start + 1; i < n; i++ {
		prev, curr := t.positions.at(i-1).pos, t.positions.at(i).pos
		total += math.Hypot(float64(curr.X-prev.X), float64(curr.Y-prev.Y))
	}
	return total / float64(count)
}

// AddSighting records a carried-object sighting, evicting the oldest beyond
// capacity.
func (t *Track) AddSighting(s Sighting) {
	t.sightings.push(s)
}

// SightingsSince returns carried-object sightings newer than the window.
func (t *Track) SightingsSince(now time.Time, window time.Duration) []Sighting {
	var out []Sighting
	for _, s := range t.sightings.items() {
		if now.Sub(s.Time) < window {
			out = append(out, s)
		}
	}
	return out
}

// AddEvent appends a risk event to the track.
func (t *Track) AddEvent(e RiskEvent) {
	t.events = append(t.events, e)
}

// Events returns the track's risk events oldest-first. The returned slice
// is a copy; events themselves are immutable.
func (t *Track) Events() []RiskEvent {
	return append([]RiskEvent(nil), t.events...)
}

// HasEventSince reports whether an event of the given type exists within
// the window. Behavior rules use this as their emission cooldown.
func (t *Track) HasEventSince(et EventType, now time.Time, window time.Duration) bool {
	for _, e := range t.events {
		if e.Type == et && now.Sub(e.Time) < window {
			return true
		}
	}
	return false
}

// EventsSince counts events of any type newer than the window.
func (t *Track) EventsSince(now time.Time, window time.Duration) int {
	count := 0
	for _, e := range t.events {
		if now.Sub(e.Time) < window {
			count++
		}
	}
	return count
}

// PruneEvents drops events older than the retention window.
func (t *Track) PruneEvents(now time.Time) {
	kept := t.events[:0]
	for _, e := range t.events {
		if now.Sub(e.Time) < EventRetention {
			kept = append(kept, e)
		}
	}
	t.events = kept
}

// StationarySince returns the start of the current stationary window.
func (t *Track) StationarySince() (time.Time, bool) {
	return t.stationarySince, t.stationary
}

// MarkStationary opens a stationary window if one is not already open.
func (t *Track) MarkStationary(now time.Time) {
	if !t.stationary {
		t.stationary = true
		t.stationarySince = now
	}
}

// ClearStationary closes the stationary window.
func (t *Track) ClearStationary() {
	t.stationary = false
	t.stationarySince = time.Time{}
}

// LastNotifiedThreat returns the notification dedup state.
func (t *Track) LastNotifiedThreat() EventType { return t.lastNotifiedThreat }

// SetLastNotifiedThreat updates the notification dedup state.
func (t *Track) SetLastNotifiedThreat(et EventType) { t.lastNotifiedThreat = et }

// Status returns the track's current threat status label.
func (t *Track) Status() EventType { return t.status }

// SetStatus updates the track's threat status label.
func (t *Track) SetStatus(et EventType) { t.status = et }
