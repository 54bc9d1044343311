// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("hunter2hunter2")
	require.NoError(t, err)
	return NewService(config.AuthConfig{
		JWTSecret:         testSecret,
		AdminUsername:     "ops",
		AdminPasswordHash: hash,
		TokenTTL:          time.Hour,
	})
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestService(t)

	token, expiry, err := svc.Login("ops", "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, time.Minute)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, "kestrel", claims.Issuer)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("intruder", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t)
	other := NewService(config.AuthConfig{
		JWTSecret:     "ffffffffffffffffffffffffffffffff",
		AdminUsername: "ops",
		TokenTTL:      time.Hour,
	})

	hash, err := HashPassword("pw")
	require.NoError(t, err)
	other.passwordHash = []byte(hash)

	token, _, err := other.Login("ops", "pw")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	svc := NewService(config.AuthConfig{
		JWTSecret:         testSecret,
		AdminUsername:     "ops",
		AdminPasswordHash: hash,
		TokenTTL:          -time.Minute,
	})
	// A non-positive TTL falls back to the 24h default, so force it.
	svc.ttl = -time.Minute

	token, _, err := svc.Login("ops", "pw")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	token, _, err := svc.Login("ops", "hunter2hunter2")
	require.NoError(t, err)

	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "ops", claims.Username)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid bearer token", "Bearer " + token, http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"invalid token", "Bearer bogus", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sources/status", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
