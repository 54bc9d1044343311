// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package engine

import (
	"time"

	"github.com/samber/lo"

	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/track"
)

// Risk distribution bucket bounds.
const (
	riskMediumFloor   = 10.0
	riskHighFloor     = 25.0
	riskCriticalFloor = 50.0
)

// Stats is a point-in-time statistics snapshot for one session.
type Stats struct {
	SourceID         string         `json:"source_id"`
	Running          bool           `json:"running"`
	Paused           bool           `json:"paused"`
	FramesProcessed  uint64         `json:"frames_processed"`
	ActiveTracks     int            `json:"active_tracks"`
	TotalTracks      int            `json:"total_tracks"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	FPS              float64        `json:"fps"`
	ZoneCount        int            `json:"zone_count"`
	Timestamp        time.Time      `json:"timestamp"`
}

func (st Stats) clone() Stats {
	out := st
	out.RiskDistribution = lo.Assign(map[string]int{}, st.RiskDistribution)
	return out
}

// publishStats recomputes the statistics snapshot at the end of a frame. Only
// the serve goroutine calls this, so track reads here never race the loop.
func (s *Session) publishStats(now time.Time, frameTimes []time.Time) {
	active := s.store.Active(now)

	distribution := map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0}
	for _, tr := range active {
		score, _ := s.calculator.Score(tr, now)
		distribution[riskBucket(score)]++
	}

	metrics.ActiveTracks.WithLabelValues(s.sourceID).Set(float64(len(active)))

	s.mu.Lock()
	s.stats.FramesProcessed++
	s.stats.ActiveTracks = len(active)
	s.stats.TotalTracks = s.store.Len()
	s.stats.RiskDistribution = distribution
	s.stats.FPS = estimateFPS(frameTimes)
	s.stats.Timestamp = now
	s.mu.Unlock()
}

func riskBucket(score float64) string {
	switch {
	case score >= riskCriticalFloor:
		return "critical"
	case score >= riskHighFloor:
		return "high"
	case score >= riskMediumFloor:
		return "medium"
	default:
		return "low"
	}
}

// estimateFPS derives throughput from the retained frame wall-clock times.
func estimateFPS(frameTimes []time.Time) float64 {
	if len(frameTimes) < 2 {
		return 0
	}
	elapsed := frameTimes[len(frameTimes)-1].Sub(frameTimes[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(frameTimes)-1) / elapsed
}

// TrackSummary is the per-track view exposed by the stats endpoint.
type TrackSummary struct {
	TrackID   int             `json:"track_id"`
	Status    track.EventType `json:"status"`
	RiskScore float64         `json:"risk_score"`
	Pattern   track.Pattern   `json:"movement_pattern"`
	LastSeen  time.Time       `json:"last_seen"`
}

// ActiveTrackSummaries returns a per-track summary of the currently active
// tracks. Called from the control API; the store lock plus the fact that the
// serve goroutine is the only mutator keeps the read consistent enough for
// monitoring.
func (s *Session) ActiveTrackSummaries(now time.Time) []TrackSummary {
	active := s.store.Active(now)
	return lo.Map(active, func(tr *track.Track, _ int) TrackSummary {
		score, _ := s.calculator.Score(tr, now)
		return TrackSummary{
			TrackID:   tr.ID(),
			Status:    tr.Status(),
			RiskScore: score,
			Pattern:   tr.MovementPattern(),
			LastSeen:  tr.LastSeen(),
		}
	})
}
