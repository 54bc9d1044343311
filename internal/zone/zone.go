// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package zone models named security zones with access-level classifications
// and answers point-in-polygon membership queries for intrusion testing.
//
// Zone vertices are stored in the reference resolution the zones were
// authored at. Containment tests run in that same untransformed coordinate
// space; ScaledPoints exists only for rendering at a different display
// resolution. Callers must not mix the two spaces.
package zone

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/kestrelsec/kestrel/internal/vision"
)

// AccessLevel classifies who may be present in a zone.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessMonitored  AccessLevel = "monitored"
	AccessRestricted AccessLevel = "restricted"
	AccessCritical   AccessLevel = "critical"
)

// Valid reports whether the access level is one of the known values.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessPublic, AccessMonitored, AccessRestricted, AccessCritical:
		return true
	}
	return false
}

// Restricted reports whether presence in the zone constitutes an intrusion.
func (a AccessLevel) Restricted() bool {
	return a == AccessRestricted || a == AccessCritical
}

// Zone is a named polygon in reference-resolution pixel coordinates.
// Immutable after construction.
type Zone struct {
	Name   string
	Access AccessLevel

	points []vision.Point
	ring   orb.Ring
}

// New constructs a zone from ordered polygon vertices. A zone with fewer
// than 3 vertices is valid but contains no points.
func New(name string, access AccessLevel, points []vision.Point) *Zone {
	z := &Zone{
		Name:   name,
		Access: access,
		points: append([]vision.Point(nil), points...),
	}
	if len(points) >= 3 {
		ring := make(orb.Ring, 0, len(points)+1)
		for _, p := range points {
			ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
		}
		// planar.RingContains walks consecutive segments, so the ring must
		// be explicitly closed.
		ring = append(ring, ring[0])
		z.ring = ring
	}
	return z
}

// Contains reports whether p lies inside or on the zone polygon,
// in the zone's reference coordinate space.
func (z *Zone) Contains(p vision.Point) bool {
	if len(z.ring) == 0 {
		return false
	}
	return planar.RingContains(z.ring, orb.Point{float64(p.X), float64(p.Y)})
}

// Points returns a copy of the zone's vertices in reference coordinates.
func (z *Zone) Points() []vision.Point {
	return append([]vision.Point(nil), z.points...)
}

// ScaledPoints returns the vertices scaled from the reference resolution
// (refW x refH) to a display resolution. Rendering only; never use the
// result for containment tests.
func (z *Zone) ScaledPoints(refW, refH, displayW, displayH int) []vision.Point {
	if refW <= 0 || refH <= 0 {
		return z.Points()
	}
	xScale := float64(displayW) / float64(refW)
	yScale := float64(displayH) / float64(refH)
	scaled := make([]vision.Point, len(z.points))
	for i, p := range z.points {
		scaled[i] = vision.Point{
			X: int(float64(p.X) * xScale),
			Y: int(float64(p.Y) * yScale),
		}
	}
	return scaled
}

// Set is the immutable zone collection for one monitoring session, together
// with the resolution the zones were authored at.
type Set struct {
	Zones          []*Zone
	OriginalWidth  int
	OriginalHeight int
}

// Len returns the number of zones in the set. Nil-safe.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Zones)
}
