// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/kestrelsec/kestrel/internal/logging"
)

// WebhookNotifier sends CRITICAL alerts to a generic webhook endpoint; lower
// levels are dropped so the external channel only carries escalations.
// Deliveries go through a circuit breaker so a dead endpoint cannot stall
// alert dispatch: after repeated consecutive failures the breaker opens and
// sends fail fast until the endpoint recovers.
type WebhookNotifier struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	enabled    bool
	mu         sync.RWMutex

	// Rate limiting
	lastSent  time.Time
	rateLimit time.Duration
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL         string            `json:"url" koanf:"url"`
	Headers     map[string]string `json:"headers,omitempty" koanf:"headers"` // Custom headers (e.g., auth)
	Enabled     bool              `json:"enabled" koanf:"enabled"`
	RateLimitMs int               `json:"rate_limit_ms" koanf:"rate_limit_ms"`
}

// WebhookPayload is the JSON payload sent to the webhook endpoint.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	EventType string    `json:"event_type"` // security_alert
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // kestrel
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(config WebhookConfig) *WebhookNotifier {
	rateLimit := time.Duration(config.RateLimitMs) * time.Millisecond
	if rateLimit == 0 {
		rateLimit = 500 * time.Millisecond // Default 500ms rate limit
	}

	headers := make(map[string]string)
	for k, v := range config.Headers {
		headers[k] = v
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "webhook-notifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state change")
		},
	})

	return &WebhookNotifier{
		webhookURL: config.URL,
		headers:    headers,
		enabled:    config.Enabled,
		rateLimit:  rateLimit,
		breaker:    breaker,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled returns whether this notifier is enabled.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.webhookURL != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send delivers an alert to the webhook endpoint. Alerts below CRITICAL are
// dropped without touching the endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, alert *Alert) error {
	if alert.Level != AlertCritical {
		return nil
	}
	n.mu.RLock()
	if !n.enabled || n.webhookURL == "" {
		n.mu.RUnlock()
		return nil
	}
	webhookURL := n.webhookURL
	headers := make(map[string]string)
	for k, v := range n.headers {
		headers[k] = v
	}
	rateLimit := n.rateLimit
	lastSent := n.lastSent
	n.mu.RUnlock()

	// Rate limiting with context cancellation support
	if time.Since(lastSent) < rateLimit {
		waitTime := rateLimit - time.Since(lastSent)
		select {
		case <-time.After(waitTime):
			// Continue after rate limit wait
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	payload := WebhookPayload{
		Alert:     alert,
		EventType: "security_alert",
		Timestamp: time.Now(),
		Source:    "kestrel",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, webhookURL, headers, body)
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
