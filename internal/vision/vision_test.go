// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectCenter(t *testing.T) {
	assert.Equal(t, Point{X: 15, Y: 25}, Rect{X1: 10, Y1: 20, X2: 20, Y2: 30}.Center())
}

func TestRectExpand(t *testing.T) {
	got := Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}.Expand(5)
	assert.Equal(t, Rect{X1: 5, Y1: 5, X2: 25, Y2: 25}, got)
}

func TestRectOverlaps(t *testing.T) {
	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}

	assert.True(t, a.Overlaps(Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}))
	assert.True(t, a.Overlaps(Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}), "touching edges overlap")
	assert.True(t, a.Overlaps(Rect{X1: 2, Y1: 2, X2: 8, Y2: 8}), "containment overlaps")
	assert.False(t, a.Overlaps(Rect{X1: 11, Y1: 0, X2: 20, Y2: 10}))
	assert.False(t, a.Overlaps(Rect{X1: 0, Y1: 11, X2: 10, Y2: 20}))
}
