// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package config loads the application configuration from layered sources
// with clear precedence: environment variables over the optional YAML config
// file over built-in defaults.
package config

import (
	"time"

	"github.com/kestrelsec/kestrel/internal/dispatch"
	"github.com/kestrelsec/kestrel/internal/logging"
)

// Config is the root application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Auth    AuthConfig    `koanf:"auth"`
	Engine  EngineConfig  `koanf:"engine"`
	Zones   ZonesConfig   `koanf:"zones"`
	Storage StorageConfig `koanf:"storage"`
	Notify  NotifyConfig  `koanf:"notify"`
	Logging LoggingConfig `koanf:"logging"`
}

// StorageConfig configures incident persistence. An empty path disables it.
type StorageConfig struct {
	Path          string `koanf:"path"`
	RetentionDays int    `koanf:"retention_days" validate:"gte=0"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout           time.Duration `koanf:"timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// AuthConfig configures JWT authentication for the control API.
type AuthConfig struct {
	// Enabled turns authentication on. When false every endpoint is open;
	// only acceptable on trusted networks.
	Enabled bool `koanf:"enabled"`

	// JWTSecret signs access tokens. Required when auth is enabled.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminUsername and AdminPasswordHash are the single operator
	// credential pair. The hash is bcrypt.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// EngineConfig configures the per-session analysis defaults.
type EngineConfig struct {
	// LoiteringThreshold is how long a person must stay stationary before
	// a loitering event is raised.
	LoiteringThreshold time.Duration `koanf:"loitering_threshold"`

	// RiskAlertThreshold is the minimum risk score for incidents.
	RiskAlertThreshold float64 `koanf:"risk_alert_threshold" validate:"gte=0,lte=100"`

	// CriticalAlertThreshold is the minimum risk score for alerts to be
	// CRITICAL instead of HIGH.
	CriticalAlertThreshold float64 `koanf:"critical_alert_threshold" validate:"gte=0,lte=100"`

	// MaxFPS caps the per-session frame processing rate. Zero disables
	// pacing.
	MaxFPS float64 `koanf:"max_fps" validate:"gte=0"`
}

// ZonesConfig locates the zone definition file.
type ZonesConfig struct {
	Path string `koanf:"path"`
}

// NotifyConfig configures outbound alert delivery.
type NotifyConfig struct {
	Webhook dispatch.WebhookConfig `koanf:"webhook"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ToLogging converts to the logging package's config.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:  c.Level,
		Format: c.Format,
		Caller: c.Caller,
	}
}

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8090,
			Timeout:           30 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
		},
		Auth: AuthConfig{
			Enabled:  false,
			TokenTTL: 24 * time.Hour,
		},
		Engine: EngineConfig{
			LoiteringThreshold:     10 * time.Second,
			RiskAlertThreshold:     20.0,
			CriticalAlertThreshold: 40.0,
			MaxFPS:                 0, // unpaced
		},
		Zones: ZonesConfig{
			Path: "zones.json",
		},
		Storage: StorageConfig{
			Path:          "",
			RetentionDays: 30,
		},
		Notify: NotifyConfig{
			Webhook: dispatch.WebhookConfig{
				Enabled:     false,
				RateLimitMs: 500,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
