// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package auth implements admission control: bearer-token issuance and
// verification with a shared verification cache, and credential checks for
// the login endpoint.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/models"
)

// Claims is the bearer-token payload. The directory remains the source of
// truth for role, permissions, and account status; the claims are only a
// hint for the holder and are re-resolved on verification.
type Claims struct {
	Email       string   `json:"email"`
	TenantID    string   `json:"tenant_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and parses bearer tokens using HMAC-SHA256.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewTokenManager creates a token manager from the security configuration.
// The secret is stored as []byte to avoid string interning.
func NewTokenManager(cfg config.SecurityConfig) (*TokenManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

// Generate issues a signed token for the principal.
func (m *TokenManager) Generate(p *models.Principal) (string, error) {
	now := m.now()
	claims := &Claims{
		Email:       p.Email,
		TenantID:    p.TenantID,
		Role:        p.Role.String(),
		Permissions: p.Permissions.Slice(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token signature and temporal claims.
// Only HMAC signing is accepted, so a token that claims another algorithm
// is rejected before the signature is checked.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
