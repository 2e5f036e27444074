// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth verifies bearer tokens issued by the identity provider.
//
// The service fronts a hosted auth system that signs access tokens with
// a shared HS256 secret. JWTProvider verifies the signature and expiry
// locally, with no network round trip, and maps the token claims onto
// extensions.AuthInfo: the subject becomes the user id that scopes
// every workflow and execution.
//
// All validation failures wrap extensions.ErrUnauthorized so the HTTP
// middleware can map them to 401 without inspecting messages.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AleutianAI/AdForge/pkg/extensions"
)

// accessClaims are the claims the identity provider puts in access tokens.
//
// Only the fields the service consumes are declared; unknown claims are
// ignored by the JSON decoder.
type accessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// JWTProvider validates HS256 access tokens against a shared secret.
//
// # Thread Safety
//
// Safe for concurrent use; the provider is immutable after construction.
type JWTProvider struct {
	secret []byte
	leeway time.Duration
}

// Option configures a JWTProvider.
type Option func(*JWTProvider)

// WithLeeway sets the clock-skew tolerance applied to time-based claims.
// Default is zero (no leeway).
func WithLeeway(d time.Duration) Option {
	return func(p *JWTProvider) {
		p.leeway = d
	}
}

// NewJWTProvider creates a provider over the identity provider's
// signing secret.
//
// # Inputs
//
//   - secret: The raw HS256 signing secret. Must be non-empty.
//   - opts: Optional configuration.
//
// # Outputs
//
//   - *JWTProvider: The configured provider.
//   - error: Non-nil when the secret is empty.
func NewJWTProvider(secret []byte, opts ...Option) (*JWTProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	p := &JWTProvider{secret: secret}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Validate verifies the token and returns the caller's identity.
//
// # Description
//
// Parses and verifies the compact JWT: HS256 signature against the
// shared secret, expiry (required) and not-before with the configured
// leeway, and a non-empty subject. Tokens signed with any other
// algorithm are rejected before signature verification, so an
// attacker cannot downgrade to "none" or confuse HMAC with RSA.
//
// # Outputs
//
//   - *extensions.AuthInfo: Subject as UserID, email claim as Email,
//     role and session_id claims in Metadata when present.
//   - error: Wraps extensions.ErrUnauthorized on any validation failure.
func (p *JWTProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", extensions.ErrUnauthorized)
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return p.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", extensions.ErrUnauthorized)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", extensions.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject: %w", extensions.ErrUnauthorized)
	}

	info := &extensions.AuthInfo{
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.Role != "" || claims.SessionID != "" {
		info.Metadata = extensions.NewMetadata()
		if claims.Role != "" {
			info.Metadata.Set("role", claims.Role)
		}
		if claims.SessionID != "" {
			info.Metadata.Set("session_id", claims.SessionID)
		}
	}
	return info, nil
}

// Compile-time interface compliance check.
var _ extensions.AuthProvider = (*JWTProvider)(nil)
