// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package track

import (
	"sort"
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/vision"
)

// Store owns every Track for one monitored source. The session frame loop
// is the sole mutator; the mutex exists only so statistics snapshots can be
// read from the control API without tearing.
type Store struct {
	mu     sync.RWMutex
	tracks map[int]*Track
}

// NewStore creates an empty track store.
func NewStore() *Store {
	return &Store{tracks: make(map[int]*Track)}
}

// Update applies one frame of tracker observations: unseen track IDs get a
// new Track, existing ones get a position/bbox sample appended.
func (s *Store) Update(observations []vision.Observation, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obs := range observations {
		tr, ok := s.tracks[obs.TrackID]
		if !ok {
			tr = newTrack(obs.TrackID, now)
			s.tracks[obs.TrackID] = tr
		}
		tr.AddPosition(obs.BBox.Center(), now, obs.BBox)
	}
}

// Get returns the track with the given ID.
func (s *Store) Get(id int) (*Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.tracks[id]
	return tr, ok
}

// Active returns tracks seen within the active window, ordered by track ID
// so downstream processing is deterministic.
func (s *Store) Active(now time.Time) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Track
	for _, tr := range s.tracks {
		if tr.ActiveAt(now) {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// All returns every track, active or not, ordered by track ID.
func (s *Store) All() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, 0, len(s.tracks))
	for _, tr := range s.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the total number of tracks, active or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Evict removes tracks not seen for longer than EvictAfter and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, tr := range s.tracks {
		if now.Sub(tr.lastSeen) > EvictAfter {
			delete(s.tracks, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Int("remaining", len(s.tracks)).Msg("evicted inactive tracks")
	}
	return removed
}
