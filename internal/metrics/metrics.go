// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package metrics exposes Prometheus instrumentation for the analytics
// pipeline: frame throughput, per-frame latency, emitted risk events,
// incidents, alerts, track population, and API/WebSocket activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	FramesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_frames_processed_total",
			Help: "Total number of video frames processed",
		},
		[]string{"source"},
	)

	FrameProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_frame_processing_duration_seconds",
			Help:    "Per-frame analysis duration in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"source"},
	)

	DetectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_detection_errors_total",
			Help: "Total number of detector or tracker failures",
		},
		[]string{"source", "stage"}, // stage: "detect", "track"
	)

	RiskEventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_risk_events_total",
			Help: "Total number of behavior risk events emitted",
		},
		[]string{"source", "event_type"},
	)

	IncidentsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_incidents_total",
			Help: "Total number of incident records emitted",
		},
		[]string{"source"},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_alerts_total",
			Help: "Total number of deduplicated alerts raised",
		},
		[]string{"source", "level"},
	)

	ActiveTracks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kestrel_active_tracks",
			Help: "Current number of active tracks per source",
		},
		[]string{"source"},
	)

	TracksEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_tracks_evicted_total",
			Help: "Total number of tracks removed for inactivity",
		},
		[]string{"source"},
	)

	SinkDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_sink_drops_total",
			Help: "Total number of incidents or alerts dropped on full sink channels",
		},
		[]string{"source", "kind"}, // kind: "incident", "alert"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kestrel_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)
)

// RecordFrame records one processed frame and its analysis duration.
func RecordFrame(source string, duration time.Duration) {
	FramesProcessed.WithLabelValues(source).Inc()
	FrameProcessingDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
