// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package dispatch turns per-track risk evaluations into incident records and
// deduplicated operator alerts, and delivers alerts to notifiers.
package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/kestrel/internal/track"
	"github.com/kestrelsec/kestrel/internal/vision"
)

// AlertLevel is the operator-facing severity of an alert.
type AlertLevel string

const (
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// Incident is one per-frame record of a track whose risk score crossed the
// alert threshold. Incidents are emitted every qualifying frame; the alert
// dedup happens one layer up.
type Incident struct {
	ID            uuid.UUID         `json:"id"`
	SourceID      string            `json:"source_id"`
	TrackID       int               `json:"track_id"`
	Time          time.Time         `json:"timestamp"`
	RiskScore     float64           `json:"risk_score"`
	PrimaryThreat track.EventType   `json:"primary_threat"`
	Location      vision.Point      `json:"location"`
	EventTypes    []track.EventType `json:"events"`
	Path          []vision.Point    `json:"path"`
}

// Alert is a deduplicated operator notification, emitted only when a track's
// primary threat changes.
type Alert struct {
	ID        uuid.UUID       `json:"id"`
	Level     AlertLevel      `json:"level"`
	SourceID  string          `json:"source_id"`
	TrackID   int             `json:"track_id"`
	RiskScore float64         `json:"risk_score"`
	Threat    track.EventType `json:"threat_type"`
	Location  vision.Point    `json:"location"`
	Time      time.Time       `json:"timestamp"`
}
