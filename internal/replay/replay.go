// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package replay provides a recorded perception pipeline backed by a JSONL
// file: one frame record per line, each carrying the detections observed in
// that frame. It drives the full analysis pipeline without a camera or a
// model, for offline analysis of captured footage and for integration tests.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/vision"
)

// recordDetection is one detection in a frame record. TrackID carries the
// recorded track assignment; absent means untracked.
type recordDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"` // x1, y1, x2, y2
	TrackID    *int    `json:"track_id,omitempty"`
}

// frameRecord is one line of the JSONL capture.
type frameRecord struct {
	Seq        int64             `json:"seq"`
	Time       time.Time         `json:"time"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []recordDetection `json:"detections"`
}

// Replay reads a JSONL capture and exposes it as a frame source, a detector,
// and a tracker over the same data. The three stages must be driven in frame
// order by a single pipeline loop.
type Replay struct {
	mu      sync.Mutex
	file    *os.File
	scanner *bufio.Scanner
	current *frameRecord
	line    int
}

// Open opens a JSONL capture file.
func Open(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Replay{file: f, scanner: scanner}, nil
}

// Next returns the next recorded frame. Returns io.EOF when the capture is
// exhausted. Implements vision.FrameSource.
func (r *Replay) Next(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec frameRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", r.line, err)
		}
		r.current = &rec
		return &vision.Frame{
			Seq:    rec.Seq,
			Time:   rec.Time,
			Width:  rec.Width,
			Height: rec.Height,
		}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying file. Implements vision.FrameSource.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Detect returns the recorded detections for the given frame. Implements
// vision.Detector.
func (r *Replay) Detect(_ context.Context, frame *vision.Frame) ([]vision.Detection, error) {
	rec, err := r.recordFor(frame.Seq)
	if err != nil {
		return nil, err
	}
	out := make([]vision.Detection, 0, len(rec.Detections))
	for _, d := range rec.Detections {
		bbox := vision.Rect{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]}
		out = append(out, vision.Detection{
			BBox:       bbox,
			Confidence: d.Confidence,
			Class:      d.Class,
			Center:     bbox.Center(),
		})
	}
	return out, nil
}

// Update returns the recorded track assignments for the person detections of
// the given frame. Implements vision.Tracker.
func (r *Replay) Update(_ []vision.Detection, frame *vision.Frame) ([]vision.Observation, error) {
	rec, err := r.recordFor(frame.Seq)
	if err != nil {
		return nil, err
	}
	var out []vision.Observation
	for _, d := range rec.Detections {
		if d.Class != vision.ClassPerson || d.TrackID == nil {
			continue
		}
		out = append(out, vision.Observation{
			TrackID: *d.TrackID,
			BBox:    vision.Rect{X1: d.BBox[0], Y1: d.BBox[1], X2: d.BBox[2], Y2: d.BBox[3]},
		})
	}
	return out, nil
}

// Reset is a no-op: recorded track assignments are authoritative. Implements
// vision.Tracker.
func (r *Replay) Reset() error { return nil }

// Pipeline returns the replay wired as all three perception stages.
func (r *Replay) Pipeline() (vision.FrameSource, vision.Detector, vision.Tracker) {
	return r, r, r
}

func (r *Replay) recordFor(seq int64) (*frameRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.Seq != seq {
		return nil, fmt.Errorf("replay out of sync: have frame %v, asked for %d", currentSeq(r.current), seq)
	}
	return r.current, nil
}

func currentSeq(rec *frameRecord) interface{} {
	if rec == nil {
		return nil
	}
	return rec.Seq
}
