// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package dispatch

import (
	"context"

	"github.com/kestrelsec/kestrel/internal/logging"
)

// Notifier delivers alerts to an external channel.
type Notifier interface {
	// Name returns a short identifier for logging.
	Name() string
	// Enabled reports whether the notifier should receive alerts.
	Enabled() bool
	// Send delivers one alert. Implementations must honor ctx cancellation.
	Send(ctx context.Context, alert *Alert) error
}

// LogNotifier writes alerts to the structured log. Always enabled; it is the
// fallback channel when no external notifier is configured.
type LogNotifier struct{}

// Name returns the notifier name.
func (LogNotifier) Name() string { return "log" }

// Enabled always reports true.
func (LogNotifier) Enabled() bool { return true }

// Send logs the alert at error level for CRITICAL, warn otherwise.
func (LogNotifier) Send(_ context.Context, alert *Alert) error {
	evt := logging.Warn()
	if alert.Level == AlertCritical {
		evt = logging.Error()
	}
	evt.
		Str("source", alert.SourceID).
		Int("track_id", alert.TrackID).
		Str("level", string(alert.Level)).
		Str("threat", string(alert.Threat)).
		Float64("risk_score", alert.RiskScore).
		Msg("security alert")
	return nil
}
