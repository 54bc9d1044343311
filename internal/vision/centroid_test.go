// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personAt(x, y int) Detection {
	bbox := Rect{X1: x - 10, Y1: y - 20, X2: x + 10, Y2: y + 20}
	return Detection{BBox: bbox, Confidence: 0.9, Class: ClassPerson, Center: bbox.Center()}
}

func TestCentroidTrackerKeepsIDAcrossFrames(t *testing.T) {
	tr := NewCentroidTracker(0, 0)

	first, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Small motion stays on the same identity.
	second, err := tr.Update([]Detection{personAt(130, 110)}, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].TrackID, second[0].TrackID)
}

func TestCentroidTrackerOpensNewTrackBeyondDistance(t *testing.T) {
	tr := NewCentroidTracker(50, 0)

	first, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)

	second, err := tr.Update([]Detection{personAt(400, 400)}, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].TrackID, second[0].TrackID)
}

func TestCentroidTrackerMatchesGreedily(t *testing.T) {
	tr := NewCentroidTracker(0, 0)

	obs, err := tr.Update([]Detection{personAt(100, 100), personAt(300, 100)}, nil)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.NotEqual(t, obs[0].TrackID, obs[1].TrackID)

	// Each person moves a little; identities must not swap.
	next, err := tr.Update([]Detection{personAt(110, 100), personAt(310, 100)}, nil)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, obs[0].TrackID, next[0].TrackID)
	assert.Equal(t, obs[1].TrackID, next[1].TrackID)
}

func TestCentroidTrackerBreaksTiesByLowestID(t *testing.T) {
	// Map iteration order is randomized, so repeat to catch an
	// order-dependent match.
	for i := 0; i < 20; i++ {
		tr := NewCentroidTracker(150, 0)

		_, err := tr.Update([]Detection{personAt(0, 100), personAt(200, 100)}, nil)
		require.NoError(t, err)

		// Equidistant from both tracks; the lower ID must win every time.
		obs, err := tr.Update([]Detection{personAt(100, 100)}, nil)
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, 0, obs[0].TrackID)
	}
}

func TestCentroidTrackerDropsMissedTracks(t *testing.T) {
	tr := NewCentroidTracker(0, 2)

	first, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)

	// Three empty frames exceed the missed-frame allowance.
	for i := 0; i < 3; i++ {
		_, err = tr.Update(nil, nil)
		require.NoError(t, err)
	}

	again, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.NotEqual(t, first[0].TrackID, again[0].TrackID)
}

func TestCentroidTrackerReset(t *testing.T) {
	tr := NewCentroidTracker(0, 0)

	_, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Reset())

	obs, err := tr.Update([]Detection{personAt(100, 100)}, nil)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 0, obs[0].TrackID, "ID assignment restarts after reset")
}
