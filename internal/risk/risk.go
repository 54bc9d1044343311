// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package risk computes a track's scalar risk score and primary-threat label
// from its event history and movement pattern. Scoring is a pure function of
// the track state and the evaluation time: no side effects, identical inputs
// give identical results.
package risk

import (
	"math"
	"time"

	"github.com/kestrelsec/kestrel/internal/track"
)

// Base risk weights per event type. Fixed lookup table; weight learning or
// calibration is out of scope.
var baseScores = map[track.EventType]float64{
	track.EventIntrusion:      15.0,
	track.EventArmedPerson:    20.0,
	track.EventLoitering:      8.0,
	track.EventErratic:        6.0,
	track.EventRunning:        5.0,
	track.EventGroupFormation: 7.0,
}

// Confidence bucket multipliers.
const (
	confidenceHigh   = 1.0 // confidence >= 0.8
	confidenceMedium = 0.8 // confidence >= 0.6
	confidenceLow    = 0.5
)

// Temporal multipliers and decay.
const (
	immediateWindow = 10 * time.Second
	recentWindow    = 30 * time.Second
	ongoingWindow   = 120 * time.Second

	immediateFactor = 1.5
	recentFactor    = 1.2
	ongoingFactor   = 1.0
	decayFloor      = 0.3
	decayScaleSecs  = 300.0
)

// Persistence bonus for long-running events.
const (
	persistenceMinDuration = 30 * time.Second
	persistenceMaxBonus    = 2.0
	persistenceWeight      = 0.3
)

// Pattern multipliers applied to the summed total.
const (
	erraticMultiplier    = 1.3
	runningMultiplier    = 1.2
	stationaryMultiplier = 1.1
)

// Escalation for multiple concurrent violations.
const (
	escalationWindow     = 60 * time.Second
	escalationMinEvents  = 2
	escalationMultiplier = 1.4
)

// MaxScore caps the final total.
const MaxScore = 100.0

// Calculator scores tracks. It is stateless and safe to share.
type Calculator struct{}

// NewCalculator returns a risk score calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Score computes the track's total risk score in [0, MaxScore] and its
// primary threat: the event type contributing the single highest weighted
// event score. Events are evaluated oldest-to-newest with a strict greater-
// than comparison, so on a tie the earliest-seen maximal event wins. A track
// with no events scores (0, "normal").
func (c *Calculator) Score(tr *track.Track, now time.Time) (float64, track.EventType) {
	total := 0.0
	primary := track.ThreatNormal
	maxEventScore := 0.0

	events := tr.Events()
	for _, e := range events {
		base := baseScores[e.Type]
		score := base * confidenceFactor(e.Confidence) * timeFactor(e.Time, now)

		if e.Duration > persistenceMinDuration {
			bonus := math.Min(e.Duration.Seconds()/60, persistenceMaxBonus)
			score *= 1 + bonus*persistenceWeight
		}

		total += score
		if score > maxEventScore {
			maxEventScore = score
			primary = e.Type
		}
	}

	switch tr.MovementPattern() {
	case track.PatternErratic:
		total *= erraticMultiplier
	case track.PatternRunning:
		total *= runningMultiplier
	case track.PatternStationary:
		if len(events) > 0 {
			total *= stationaryMultiplier
		}
	}

	if tr.EventsSince(now, escalationWindow) > escalationMinEvents {
		total *= escalationMultiplier
	}

	if total > MaxScore {
		total = MaxScore
	}
	if total < 0 {
		total = 0
	}
	return total, primary
}

func confidenceFactor(confidence float64) float64 {
	switch {
	case confidence >= 0.8:
		return confidenceHigh
	case confidence >= 0.6:
		return confidenceMedium
	default:
		return confidenceLow
	}
}

func timeFactor(eventTime, now time.Time) float64 {
	age := now.Sub(eventTime)
	switch {
	case age < immediateWindow:
		return immediateFactor
	case age < recentWindow:
		return recentFactor
	case age < ongoingWindow:
		return ongoingFactor
	default:
		return math.Max(decayFloor, math.Exp(-age.Seconds()/decayScaleSecs))
	}
}
