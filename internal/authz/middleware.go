// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package authz

import (
	"errors"
	"net/http"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/faults"
)

// Require wraps a route with an authorization check. It assumes the
// authentication middleware already ran; a missing principal is an
// unauthenticated fault, not a panic.
func Require(check Check, respond auth.ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				respond(w, r, faults.Unauthenticated(errors.New("no principal on request")))
				return
			}
			if err := check(principal); err != nil {
				respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
