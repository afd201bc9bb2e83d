// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attune-cx/attune/internal/faults"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *http.Request)
		want    string
		wantErr bool
	}{
		{
			name:  "bearer header",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc123") },
			want:  "abc123",
		},
		{
			name:  "bearer header case insensitive",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "bearer abc123") },
			want:  "abc123",
		},
		{
			name:    "malformed header",
			setup:   func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcg==") },
			wantErr: true,
		},
		{
			name:  "cookie",
			setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"}) },
			want:  "cookie-token",
		},
		{
			name:  "query parameter for websocket upgrades",
			setup: func(r *http.Request) { r.URL.RawQuery = "token=query-token" },
			want:  "query-token",
		},
		{
			name:    "missing everywhere",
			setup:   func(r *http.Request) {},
			wantErr: true,
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
				r.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})
			},
			want: "header-token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/interactions", nil)
			tt.setup(r)

			got, err := extractToken(r)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractToken = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractToken: %v", err)
			}
			if got != tt.want {
				t.Errorf("extractToken = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	v, _, _, _ := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())

	var respondErr error
	mw := NewMiddleware(v, func(w http.ResponseWriter, r *http.Request, err error) {
		respondErr = err
		w.WriteHeader(http.StatusUnauthorized)
	})

	var sawPrincipal bool
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		sawPrincipal = ok && p.ID == "p-123"
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if respondErr != nil {
		t.Fatalf("unexpected responder call: %v", respondErr)
	}
	if !sawPrincipal {
		t.Error("handler did not see the verified principal")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	v, _, _, _ := newVerifierFixture(t, 5*time.Minute)

	var respondErr error
	mw := NewMiddleware(v, func(w http.ResponseWriter, r *http.Request, err error) {
		respondErr = err
		w.WriteHeader(http.StatusUnauthorized)
	})

	reached := false
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if reached {
		t.Error("handler reached without a token")
	}
	if !faults.IsKind(respondErr, faults.KindUnauthenticated) {
		t.Errorf("responder error = %v, want unauthenticated", respondErr)
	}
}

func TestPrincipalFromContextAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := PrincipalFromContext(r.Context()); ok {
		t.Error("PrincipalFromContext reported a principal on a bare context")
	}
}
