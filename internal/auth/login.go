// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/attune-cx/attune/internal/database"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// CredentialDirectory resolves directory rows including password hashes.
type CredentialDirectory interface {
	PrincipalByEmail(ctx context.Context, email string) (*database.PrincipalRecord, error)
}

// Authenticator verifies credentials and issues tokens.
type Authenticator struct {
	directory CredentialDirectory
	tokens    *TokenManager
}

// NewAuthenticator builds the login-path authenticator.
func NewAuthenticator(directory CredentialDirectory, tokens *TokenManager) *Authenticator {
	return &Authenticator{directory: directory, tokens: tokens}
}

// Login verifies email and password and issues a bearer token.
// Unknown accounts, wrong passwords, and inactive accounts all fail with
// the same unauthenticated fault.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *models.Principal, error) {
	rec, err := a.directory.PrincipalByEmail(ctx, email)
	if err != nil {
		if faults.IsKind(err, faults.KindNotFound) {
			// Burn a comparison anyway so unknown accounts cost the same
			// as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
			return "", nil, faults.Unauthenticated(err)
		}
		return "", nil, faults.Transient("resolving account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
		logging.Debug().Str("email", email).Msg("Password verification failed")
		return "", nil, faults.Unauthenticated(err)
	}

	if !rec.IsActive() {
		metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
		logging.Debug().
			Str("principal_id", rec.ID).
			Str("status", string(rec.Status)).
			Msg("Login attempt on inactive account")
		return "", nil, faults.Unauthenticated(errors.New("account not active"))
	}

	token, err := a.tokens.Generate(&rec.Principal)
	if err != nil {
		return "", nil, faults.Transient("issuing token", err)
	}
	return token, &rec.Principal, nil
}

// HashPassword produces a bcrypt hash for storage in the directory.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to keep
// login timing uniform when the account does not exist.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
