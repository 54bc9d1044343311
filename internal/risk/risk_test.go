// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelsec/kestrel/internal/track"
	"github.com/kestrelsec/kestrel/internal/vision"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTrack builds a store-owned track with a single position sample.
func newTrack(t *testing.T) *track.Track {
	t.Helper()
	s := track.NewStore()
	s.Update([]vision.Observation{
		{TrackID: 1, BBox: vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55}},
	}, baseTime)
	tr, ok := s.Get(1)
	if !ok {
		t.Fatal("track not created")
	}
	return tr
}

// addStationaryHistory appends enough identical samples for the movement
// classifier to report a stationary pattern.
func addStationaryHistory(tr *track.Track) {
	for i := 0; i < 6; i++ {
		now := baseTime.Add(time.Duration(i) * time.Second)
		tr.AddPosition(vision.Point{X: 50, Y: 50}, now, vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55})
	}
}

func TestScoreNoEvents(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)

	score, primary := calc.Score(tr, baseTime)
	assert.Zero(t, score)
	assert.Equal(t, track.ThreatNormal, primary)
}

func TestScoreSingleFreshIntrusion(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{Type: track.EventIntrusion, Confidence: 0.9, Time: baseTime})

	score, primary := calc.Score(tr, baseTime)
	// 15 base * 1.0 confidence * 1.5 immediate.
	assert.InDelta(t, 22.5, score, 1e-9)
	assert.Equal(t, track.EventIntrusion, primary)
}

func TestScoreConfidenceBuckets(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       float64
	}{
		{"high bucket", 0.85, 22.5},   // 15 * 1.0 * 1.5
		{"medium bucket", 0.7, 18.0},  // 15 * 0.8 * 1.5
		{"low bucket", 0.55, 11.25},   // 15 * 0.5 * 1.5
		{"high boundary", 0.8, 22.5},  // >= 0.8 is the high bucket
		{"medium boundary", 0.6, 18.0}, // >= 0.6 is the medium bucket
	}

	calc := NewCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTrack(t)
			tr.AddEvent(track.RiskEvent{Type: track.EventIntrusion, Confidence: tt.confidence, Time: baseTime})

			score, _ := calc.Score(tr, baseTime)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestScoreTimeDecay(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"immediate", 5 * time.Second, 22.5},  // 15 * 1.5
		{"recent", 15 * time.Second, 18.0},    // 15 * 1.2
		{"ongoing", 60 * time.Second, 15.0},   // 15 * 1.0
		{"decay floor", 900 * time.Second, 4.5}, // exp(-3) < 0.3 floor
	}

	calc := NewCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTrack(t)
			tr.AddEvent(track.RiskEvent{Type: track.EventIntrusion, Confidence: 0.9, Time: baseTime})

			score, _ := calc.Score(tr, baseTime.Add(tt.age))
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestScorePersistenceBonus(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{
		Type:       track.EventLoitering,
		Confidence: 0.8,
		Time:       baseTime,
		Duration:   60 * time.Second,
	})

	score, _ := calc.Score(tr, baseTime)
	// 8 * 1.0 * 1.5 = 12, then * (1 + min(60/60, 2) * 0.3) = 12 * 1.3.
	assert.InDelta(t, 15.6, score, 1e-9)
}

func TestScorePersistenceBonusCapped(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{
		Type:       track.EventLoitering,
		Confidence: 0.8,
		Time:       baseTime,
		Duration:   10 * time.Minute,
	})

	score, _ := calc.Score(tr, baseTime)
	// Bonus multiplier caps at 1 + 2.0 * 0.3.
	assert.InDelta(t, 12*1.6, score, 1e-9)
}

func TestScoreEscalation(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	for i := 0; i < 3; i++ {
		tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Confidence: 0.8, Time: baseTime})
	}

	score, _ := calc.Score(tr, baseTime)
	// Three concurrent violations: 3 * (5 * 1.5), escalated by 1.4.
	assert.InDelta(t, 22.5*1.4, score, 1e-9)
}

func TestScoreTwoEventsNoEscalation(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Confidence: 0.8, Time: baseTime})
	tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Confidence: 0.8, Time: baseTime})

	score, _ := calc.Score(tr, baseTime)
	assert.InDelta(t, 15.0, score, 1e-9)
}

func TestScoreStationaryMultiplierNeedsEvents(t *testing.T) {
	calc := NewCalculator()

	tr := newTrack(t)
	addStationaryHistory(tr)
	now := baseTime.Add(5 * time.Second)

	score, _ := calc.Score(tr, now)
	assert.Zero(t, score, "stationary with no events must not score")

	tr.AddEvent(track.RiskEvent{Type: track.EventIntrusion, Confidence: 0.9, Time: now})
	score, _ = calc.Score(tr, now)
	assert.InDelta(t, 22.5*1.1, score, 1e-9)
}

func TestScoreClampedAtMax(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	for i := 0; i < 6; i++ {
		tr.AddEvent(track.RiskEvent{Type: track.EventArmedPerson, Confidence: 0.95, Time: baseTime})
	}

	score, primary := calc.Score(tr, baseTime)
	assert.Equal(t, MaxScore, score)
	assert.Equal(t, track.EventArmedPerson, primary)
}

func TestScorePrimaryIsLargestContributor(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Confidence: 0.8, Time: baseTime})
	tr.AddEvent(track.RiskEvent{Type: track.EventArmedPerson, Confidence: 0.9, Time: baseTime})
	tr.AddEvent(track.RiskEvent{Type: track.EventLoitering, Confidence: 0.8, Time: baseTime})

	_, primary := calc.Score(tr, baseTime)
	assert.Equal(t, track.EventArmedPerson, primary)
}

func TestScoreIsPure(t *testing.T) {
	calc := NewCalculator()
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{Type: track.EventIntrusion, Confidence: 0.9, Time: baseTime})
	tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Confidence: 0.7, Time: baseTime.Add(time.Second)})

	now := baseTime.Add(3 * time.Second)
	first, firstPrimary := calc.Score(tr, now)
	second, secondPrimary := calc.Score(tr, now)

	assert.Equal(t, first, second)
	assert.Equal(t, firstPrimary, secondPrimary)
	assert.Len(t, tr.Events(), 2, "scoring must not mutate the event list")
}
