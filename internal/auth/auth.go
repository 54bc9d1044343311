// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package auth provides JWT bearer authentication for the control API. A
// single operator credential is configured at startup; passwords are
// verified against a bcrypt hash and successful logins mint short-lived
// HS256 tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kestrelsec/kestrel/internal/config"
)

// Sentinel errors for authentication failures. Deliberately coarse so
// responses cannot distinguish a wrong username from a wrong password.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the JWT claims minted at login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service verifies operator credentials and issues and validates tokens.
type Service struct {
	secret       []byte
	username     string
	passwordHash []byte
	ttl          time.Duration
}

// NewService creates an auth service from configuration.
func NewService(cfg config.AuthConfig) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret:       []byte(cfg.JWTSecret),
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
		ttl:          ttl,
	}
}

// Login verifies the credentials and returns a signed token with its expiry.
func (s *Service) Login(username, password string) (string, time.Time, error) {
	if username != s.username {
		// Burn a bcrypt comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := time.Now()
	expiry := now.Add(s.ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "kestrel",
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiry, nil
}

// Verify parses and validates a token string and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash for a password, for provisioning the
// operator credential.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
