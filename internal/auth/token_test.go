// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/models"
)

const testSecret = "test-secret-0123456789abcdefghijklmnop"

func testPrincipal() *models.Principal {
	return &models.Principal{
		ID:          "p-123",
		Email:       "analyst@example.com",
		Role:        models.RoleAnalyst,
		RoleName:    "analyst",
		Permissions: models.NewPermissionSet(models.PermInteractionsWrite, models.PermInteractionsRead),
		TenantID:    "tenant-a",
		Status:      models.StatusActive,
	}
}

func newTestTokenManager(t *testing.T, ttl time.Duration) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(config.SecurityConfig{JWTSecret: testSecret, TokenTTL: ttl})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return tm
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager(config.SecurityConfig{JWTSecret: "short", TokenTTL: time.Hour})
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	tm := newTestTokenManager(t, time.Hour)
	p := testPrincipal()

	token, err := tm.Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != p.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, p.ID)
	}
	if claims.Email != p.Email {
		t.Errorf("Email = %q, want %q", claims.Email, p.Email)
	}
	if claims.TenantID != p.TenantID {
		t.Errorf("TenantID = %q, want %q", claims.TenantID, p.TenantID)
	}
	if claims.Role != "analyst" {
		t.Errorf("Role = %q, want analyst", claims.Role)
	}
	if len(claims.Permissions) != 2 {
		t.Errorf("Permissions = %v, want 2 entries", claims.Permissions)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tm := newTestTokenManager(t, -time.Minute)
	token, err := tm.Generate(testPrincipal())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := tm.Parse(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tm := newTestTokenManager(t, time.Hour)
	token, err := tm.Generate(testPrincipal())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	other, err := NewTokenManager(config.SecurityConfig{
		JWTSecret: "another-secret-0123456789abcdefghijk",
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected error for token signed with a different secret")
	}
}

func TestParseRejectsNonHMACAlgorithm(t *testing.T) {
	tm := newTestTokenManager(t, time.Hour)

	// alg=none tokens must never be accepted.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "p-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}
	if _, err := tm.Parse(token); err == nil {
		t.Fatal("expected error for alg=none token")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tm := newTestTokenManager(t, time.Hour)
	for _, raw := range []string{"", "not-a-token", strings.Repeat("a", 512)} {
		if _, err := tm.Parse(raw); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", raw)
		}
	}
}
