// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid configuration structure: %w", err)
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid value for %s: failed %q constraint", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required when auth is enabled")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return errors.New("auth.jwt_secret must be at least 32 bytes")
		}
		if c.Auth.AdminUsername == "" || c.Auth.AdminPasswordHash == "" {
			return errors.New("auth.admin_username and auth.admin_password_hash are required when auth is enabled")
		}
	}

	if c.Engine.CriticalAlertThreshold < c.Engine.RiskAlertThreshold {
		return errors.New("engine.critical_alert_threshold must not be below engine.risk_alert_threshold")
	}

	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return errors.New("notify.webhook.url is required when the webhook notifier is enabled")
	}

	return nil
}
