// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/models"
)

type contextKey string

// principalContextKey carries the verified principal on the request context.
const principalContextKey contextKey = "principal"

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal attached by Authenticate.
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*models.Principal)
	return p, ok
}

// ErrorResponder writes a fault as an HTTP error response. The API layer
// supplies its envelope writer so admission errors look like every other
// error.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// Middleware enforces authentication on protected routes.
type Middleware struct {
	verifier *Verifier
	respond  ErrorResponder
}

// NewMiddleware builds the authentication middleware.
func NewMiddleware(verifier *Verifier, respond ErrorResponder) *Middleware {
	return &Middleware{verifier: verifier, respond: respond}
}

// Authenticate verifies the bearer token and attaches the resolved
// principal to the request context. Requests without a verifiable token
// never reach the next handler.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractToken(r)
		if err != nil {
			m.respond(w, r, faults.Unauthenticated(err))
			return
		}

		principal, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.respond(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// extractToken pulls the bearer token from the Authorization header, the
// token cookie, or the token query parameter. The query form exists for
// WebSocket upgrades, where browsers cannot set headers.
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("malformed authorization header")
		}
		return parts[1], nil
	}
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errors.New("missing bearer token")
}
