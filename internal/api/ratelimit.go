// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package api

import (
	"net"
	"net/http"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/ratelimit"
)

// limitByIP enforces a limiter scope keyed on the caller's source address.
// Used for the global scope and the strict auth-endpoint scope.
func limitByIP(limiter *ratelimit.Limiter, scope ratelimit.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Allow(r.Context(), scope, clientIP(r)); err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitByPrincipal enforces the per-principal scope. Runs after the
// authentication middleware.
func limitByPrincipal(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := clientIP(r)
			if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
				identity = principal.ID
			}
			if err := limiter.Allow(r.Context(), ratelimit.ScopePrincipal, identity); err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's source address. chi's RealIP middleware
// has already folded trusted proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
