// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package vision defines the input contract between the risk-analytics engine
// and its external collaborators: the object detector, the multi-object
// tracker, and the frame source. The engine consumes detections and track
// observations as opaque inputs; it never performs detection or
// re-identification itself, and it never assumes a specific vendor library.
package vision

import (
	"context"
	"time"
)

// Point is a pixel coordinate in the detection coordinate space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an integer pixel bounding box, [X1,Y1] top-left, [X2,Y2]
// bottom-right inclusive.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Expand grows the rectangle by margin pixels on every side.
func (r Rect) Expand(margin int) Rect {
	return Rect{X1: r.X1 - margin, Y1: r.Y1 - margin, X2: r.X2 + margin, Y2: r.Y2 + margin}
}

// Overlaps reports whether two rectangles intersect.
func (r Rect) Overlaps(o Rect) bool {
	return !(o.X2 < r.X1 || o.X1 > r.X2 || o.Y2 < r.Y1 || o.Y1 > r.Y2)
}

// ClassPerson is the detector class label for a tracked person.
const ClassPerson = "person"

// Detection is one per-frame detector output. Ephemeral: consumed by the
// engine during the frame it was produced for, then discarded.
type Detection struct {
	BBox       Rect    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
	Center     Point   `json:"center"`
}

// Frame is a single video frame handed to the engine. The pixel payload is
// opaque to the engine; only the tracker and detector interpret it.
type Frame struct {
	Seq    int64     `json:"seq"`
	Time   time.Time `json:"time"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Pixels []byte    `json:"-"`
}

// Observation is one tracked person in a frame, as reported by the external
// multi-object tracker.
type Observation struct {
	TrackID int  `json:"track_id"`
	BBox    Rect `json:"bbox"`
}

// Detector produces per-frame object detections.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Detection, error)
}

// Tracker associates person detections across frames and assigns stable
// track identifiers. Reset clears the tracker's internal association state;
// it is invoked periodically to bound memory and drift in long sessions and
// must not affect any state held outside the tracker.
type Tracker interface {
	Update(detections []Detection, frame *Frame) ([]Observation, error)
	Reset() error
}

// FrameSource yields frames for one monitored source. Next blocks until a
// frame is available, the source ends (io.EOF), or ctx is canceled.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}
