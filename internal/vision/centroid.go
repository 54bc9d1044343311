// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package vision

import (
	"math"
	"sync"
)

// Centroid tracker defaults.
const (
	defaultMaxMatchDistance = 100.0
	defaultMaxMissedFrames  = 30
)

type centroidState struct {
	center Point
	missed int
}

// CentroidTracker is a greedy nearest-centroid tracker: each detection is
// matched to the closest existing track within a distance bound, unmatched
// detections open new tracks, and tracks missing for too many consecutive
// frames are dropped. It is deliberately simple; a model-based tracker can
// replace it behind the Tracker interface without touching the pipeline.
type CentroidTracker struct {
	mu          sync.Mutex
	nextID      int
	tracks      map[int]*centroidState
	maxDistance float64
	maxMissed   int
}

// NewCentroidTracker creates a centroid tracker with the given match
// distance in pixels and missed-frame allowance. Non-positive arguments use
// the defaults.
func NewCentroidTracker(maxDistance float64, maxMissed int) *CentroidTracker {
	if maxDistance <= 0 {
		maxDistance = defaultMaxMatchDistance
	}
	if maxMissed <= 0 {
		maxMissed = defaultMaxMissedFrames
	}
	return &CentroidTracker{
		tracks:      make(map[int]*centroidState),
		maxDistance: maxDistance,
		maxMissed:   maxMissed,
	}
}

// Update matches the frame's detections to tracked identities. Implements
// Tracker.
func (t *CentroidTracker) Update(detections []Detection, _ *Frame) ([]Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	matched := make(map[int]bool, len(t.tracks))
	observations := make([]Observation, 0, len(detections))

	for _, d := range detections {
		center := d.BBox.Center()
		id, ok := t.closestTrack(center, matched)
		if !ok {
			id = t.nextID
			t.nextID++
			t.tracks[id] = &centroidState{}
		}
		t.tracks[id].center = center
		t.tracks[id].missed = 0
		matched[id] = true
		observations = append(observations, Observation{TrackID: id, BBox: d.BBox})
	}

	for id, st := range t.tracks {
		if matched[id] {
			continue
		}
		st.missed++
		if st.missed > t.maxMissed {
			delete(t.tracks, id)
		}
	}

	return observations, nil
}

// Reset drops all tracked identities and restarts ID assignment. Implements
// Tracker.
func (t *CentroidTracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int]*centroidState)
	t.nextID = 0
	return nil
}

func (t *CentroidTracker) closestTrack(center Point, matched map[int]bool) (int, bool) {
	bestID := -1
	bestDist := t.maxDistance
	for id, st := range t.tracks {
		if matched[id] {
			continue
		}
		dist := math.Hypot(float64(center.X-st.center.X), float64(center.Y-st.center.Y))
		// Ties go to the lowest ID so assignment does not depend on map
		// iteration order.
		if dist < bestDist || (dist == bestDist && (bestID < 0 || id < bestID)) {
			bestDist = dist
			bestID = id
		}
	}
	return bestID, bestID >= 0
}
