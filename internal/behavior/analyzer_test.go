// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package behavior

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/track"
	"github.com/kestrelsec/kestrel/internal/vision"
	"github.com/kestrelsec/kestrel/internal/zone"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTrack(t *testing.T) *track.Track {
	t.Helper()
	s := track.NewStore()
	s.Update([]vision.Observation{
		{TrackID: 7, BBox: vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55}},
	}, baseTime)
	tr, ok := s.Get(7)
	require.True(t, ok)
	return tr
}

func squareZone(name string, access zone.AccessLevel) *zone.Zone {
	return zone.New(name, access, []vision.Point{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
	})
}

func eventsOfType(events []track.RiskEvent, et track.EventType) []track.RiskEvent {
	var out []track.RiskEvent
	for _, e := range events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func TestIntrusionInCriticalZone(t *testing.T) {
	zones := &zone.Set{Zones: []*zone.Zone{squareZone("vault", zone.AccessCritical)}}
	a := NewAnalyzer(DefaultConfig(), zones)
	tr := newTrack(t) // position (50, 50), inside the zone

	emitted := a.Analyze(tr, baseTime)

	intrusions := eventsOfType(emitted, track.EventIntrusion)
	require.Len(t, intrusions, 1)
	assert.Equal(t, intrusionCriticalSeed, intrusions[0].Score)
	assert.Equal(t, intrusionConfidence, intrusions[0].Confidence)
	assert.Contains(t, intrusions[0].Description, "vault")
}

func TestIntrusionRestrictedSeedLower(t *testing.T) {
	zones := &zone.Set{Zones: []*zone.Zone{squareZone("loading dock", zone.AccessRestricted)}}
	a := NewAnalyzer(DefaultConfig(), zones)
	tr := newTrack(t)

	emitted := a.Analyze(tr, baseTime)

	intrusions := eventsOfType(emitted, track.EventIntrusion)
	require.Len(t, intrusions, 1)
	assert.Equal(t, intrusionRestrictedSeed, intrusions[0].Score)
}

func TestIntrusionIgnoresOpenZones(t *testing.T) {
	zones := &zone.Set{Zones: []*zone.Zone{
		squareZone("lobby", zone.AccessPublic),
		squareZone("hallway", zone.AccessMonitored),
	}}
	a := NewAnalyzer(DefaultConfig(), zones)
	tr := newTrack(t)

	emitted := a.Analyze(tr, baseTime)
	assert.Empty(t, eventsOfType(emitted, track.EventIntrusion))
}

func TestIntrusionCooldown(t *testing.T) {
	zones := &zone.Set{Zones: []*zone.Zone{squareZone("vault", zone.AccessCritical)}}
	a := NewAnalyzer(DefaultConfig(), zones)
	tr := newTrack(t)

	first := a.Analyze(tr, baseTime)
	require.Len(t, eventsOfType(first, track.EventIntrusion), 1)

	// Still inside the zone 30s later: suppressed by the 60s cooldown.
	tr.AddPosition(vision.Point{X: 50, Y: 50}, baseTime.Add(30*time.Second), vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55})
	second := a.Analyze(tr, baseTime.Add(30*time.Second))
	assert.Empty(t, eventsOfType(second, track.EventIntrusion))

	// Past the cooldown the event re-fires.
	tr.AddPosition(vision.Point{X: 50, Y: 50}, baseTime.Add(61*time.Second), vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55})
	third := a.Analyze(tr, baseTime.Add(61*time.Second))
	assert.Len(t, eventsOfType(third, track.EventIntrusion), 1)
}

func TestRecordCarriedObjects(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	tr := newTrack(t) // bbox (45,45)-(55,55), expanded to (25,25)-(75,75)

	detections := []vision.Detection{
		{Class: "knife", Confidence: 0.85, BBox: vision.Rect{X1: 60, Y1: 60, X2: 70, Y2: 70}},   // within margin
		{Class: "gun", Confidence: 0.9, BBox: vision.Rect{X1: 300, Y1: 300, X2: 320, Y2: 320}},  // far away
		{Class: "backpack", Confidence: 0.95, BBox: vision.Rect{X1: 50, Y1: 50, X2: 60, Y2: 60}}, // not weapon-class
	}
	a.RecordCarriedObjects(tr, detections, baseTime)

	sightings := tr.SightingsSince(baseTime, time.Minute)
	require.Len(t, sightings, 1)
	assert.Equal(t, "knife", sightings[0].Class)
	assert.Equal(t, 0.85, sightings[0].Confidence)
}

func TestArmedPersonFromSightings(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	tr := newTrack(t)
	tr.AddSighting(track.Sighting{Class: "knife", Confidence: 0.7, Time: baseTime})
	tr.AddSighting(track.Sighting{Class: "knife", Confidence: 0.92, Time: baseTime.Add(2 * time.Second)})

	now := baseTime.Add(3 * time.Second)
	emitted := a.Analyze(tr, now)

	armed := eventsOfType(emitted, track.EventArmedPerson)
	require.Len(t, armed, 1)
	assert.Equal(t, armedPersonSeed, armed[0].Score)
	assert.Equal(t, 0.92, armed[0].Confidence, "confidence is the best sighting in the window")

	// Within the cooldown no second event fires.
	again := a.Analyze(tr, now.Add(10*time.Second))
	assert.Empty(t, eventsOfType(again, track.EventArmedPerson))
}

func TestArmedPersonIgnoresStaleSightings(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	tr := newTrack(t)
	tr.AddSighting(track.Sighting{Class: "gun", Confidence: 0.9, Time: baseTime})

	emitted := a.Analyze(tr, baseTime.Add(45*time.Second))
	assert.Empty(t, eventsOfType(emitted, track.EventArmedPerson))
}

func TestLoiteringEmitsOnceAtThreshold(t *testing.T) {
	a := NewAnalyzer(Config{LoiteringThreshold: 5 * time.Second}, nil)
	tr := newTrack(t)

	var loitering []track.RiskEvent
	for i := 1; i <= 30; i++ {
		now := baseTime.Add(time.Duration(i) * time.Second)
		tr.AddPosition(vision.Point{X: 50, Y: 50}, now, vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55})
		loitering = append(loitering, eventsOfType(a.Analyze(tr, now), track.EventLoitering)...)
	}

	// One event when the stationary window reaches the threshold; the 60s
	// cooldown suppresses the rest of the run.
	require.Len(t, loitering, 1)
	assert.Equal(t, loiteringSeed, loitering[0].Score)
	assert.GreaterOrEqual(t, loitering[0].Duration, 5*time.Second)
}

func TestLoiteringResetsWhenMovementResumes(t *testing.T) {
	a := NewAnalyzer(Config{LoiteringThreshold: 5 * time.Second}, nil)
	tr := newTrack(t)

	// Stand still long enough to open a stationary window but not to fire.
	now := baseTime
	for i := 1; i <= 11; i++ {
		now = baseTime.Add(time.Duration(i) * time.Second)
		tr.AddPosition(vision.Point{X: 50, Y: 50}, now, vision.Rect{X1: 45, Y1: 45, X2: 55, Y2: 55})
		a.Analyze(tr, now)
	}

	// Large strides clear the stationary window before the threshold is hit.
	for i := 1; i <= 5; i++ {
		now = now.Add(time.Second)
		tr.AddPosition(vision.Point{X: 50 + 150*i, Y: 50}, now, vision.Rect{})
		emitted := a.Analyze(tr, now)
		assert.Empty(t, eventsOfType(emitted, track.EventLoitering))
	}

	_, open := tr.StationarySince()
	assert.False(t, open)
}

func TestErraticMovementEvent(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	tr := newTrack(t)

	// Zigzag at walking speed: direction reverses every second.
	now := baseTime
	for i := 1; i <= 6; i++ {
		now = baseTime.Add(time.Duration(i) * time.Second)
		x := 50 + 10*(i%2)
		tr.AddPosition(vision.Point{X: x, Y: 50}, now, vision.Rect{})
	}

	emitted := a.Analyze(tr, now)
	erratic := eventsOfType(emitted, track.EventErratic)
	require.Len(t, erratic, 1)
	assert.Equal(t, erraticSeed, erratic[0].Score)
	assert.Equal(t, erraticConfidence, erratic[0].Confidence)

	// Cooldown suppresses an immediate repeat.
	again := a.Analyze(tr, now.Add(time.Second))
	assert.Empty(t, eventsOfType(again, track.EventErratic))
}

func TestRunningEvent(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	tr := newTrack(t)

	now := baseTime
	for i := 1; i <= 6; i++ {
		now = baseTime.Add(time.Duration(i) * time.Second)
		tr.AddPosition(vision.Point{X: 50 + 80*i, Y: 50}, now, vision.Rect{})
	}

	emitted := a.Analyze(tr, now)
	running := eventsOfType(emitted, track.EventRunning)
	require.Len(t, running, 1)
	assert.Equal(t, runningSeed, running[0].Score)
}

func TestAnalyzeAppendsAndPrunes(t *testing.T) {
	zones := &zone.Set{Zones: []*zone.Zone{squareZone("vault", zone.AccessCritical)}}
	a := NewAnalyzer(DefaultConfig(), zones)
	tr := newTrack(t)
	tr.AddEvent(track.RiskEvent{Type: track.EventRunning, Time: baseTime.Add(-15 * time.Minute)})

	a.Analyze(tr, baseTime)

	events := tr.Events()
	require.Len(t, events, 1, "stale event pruned, fresh intrusion appended")
	assert.Equal(t, track.EventIntrusion, events[0].Type)
}
