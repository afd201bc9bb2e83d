// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/attune-cx/attune/internal/coordination"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// Directory resolves principals from the source of truth.
type Directory interface {
	PrincipalByID(ctx context.Context, id string) (*models.Principal, error)
}

// Verifier performs full admission verification of bearer tokens with a
// shared cache in front of the directory.
//
// The cache key is a SHA-256 fingerprint of the raw token, never the token
// itself. Entries live for the smaller of the configured cache TTL and the
// token's own remaining validity, which bounds how long a suspended or
// deleted account can keep using an already-cached token. Failed
// verifications are never cached.
type Verifier struct {
	tokens    *TokenManager
	cache     coordination.Store
	directory Directory
	cacheTTL  time.Duration

	now func() time.Time
}

// NewVerifier builds a verifier backed by the given cache and directory.
func NewVerifier(tokens *TokenManager, cache coordination.Store, directory Directory, cacheTTL time.Duration) *Verifier {
	return &Verifier{
		tokens:    tokens,
		cache:     cache,
		directory: directory,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// cachedPrincipal is the cache wire form. Principal's own JSON tags hide
// the role ordinal and permission set, so the cache carries them explicitly.
type cachedPrincipal struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	TenantID    string   `json:"tenant_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Verify resolves a raw bearer token to an active principal.
//
// All failure modes return an unauthenticated fault with an identical
// message; the distinguishing detail goes to the log only.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*models.Principal, error) {
	fp := fingerprint(rawToken)
	cacheKey := coordination.SanitizeKey("token." + fp)

	if p := v.fromCache(ctx, cacheKey); p != nil {
		metrics.TokenCacheHits.Inc()
		return p, nil
	}
	metrics.TokenCacheMisses.Inc()

	claims, err := v.tokens.Parse(rawToken)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
		logging.Debug().Err(err).Msg("Token verification failed")
		return nil, faults.Unauthenticated(err)
	}

	principal, err := v.directory.PrincipalByID(ctx, claims.Subject)
	if err != nil {
		if faults.IsKind(err, faults.KindNotFound) {
			metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
			logging.Debug().Str("principal_id", claims.Subject).Msg("Token subject not in directory")
			return nil, faults.Unauthenticated(err)
		}
		// Directory outage is not an authentication verdict.
		return nil, faults.Transient("resolving principal", err)
	}

	if !principal.IsActive() {
		metrics.AuthFailures.WithLabelValues("unauthenticated").Inc()
		logging.Debug().
			Str("principal_id", principal.ID).
			Str("status", string(principal.Status)).
			Msg("Inactive account presented a valid token")
		return nil, faults.Unauthenticated(errors.New("account not active"))
	}

	v.toCache(ctx, cacheKey, principal, claims.ExpiresAt.Time)
	return principal, nil
}

func (v *Verifier) fromCache(ctx context.Context, key string) *models.Principal {
	raw, err := v.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, coordination.ErrNotFound) {
			// A cache outage degrades to full verification.
			logging.Warn().Err(err).Msg("Token cache read failed")
		}
		return nil
	}

	var cp cachedPrincipal
	if err := json.Unmarshal(raw, &cp); err != nil {
		logging.Warn().Err(err).Msg("Corrupt token cache entry")
		_ = v.cache.Delete(ctx, key)
		return nil
	}

	role, _ := models.ParseRole(cp.Role)
	perms := make(models.PermissionSet, len(cp.Permissions))
	for _, name := range cp.Permissions {
		perms[models.Permission(name)] = struct{}{}
	}
	return &models.Principal{
		ID:          cp.ID,
		Email:       cp.Email,
		TenantID:    cp.TenantID,
		Role:        role,
		RoleName:    role.String(),
		Permissions: perms,
		Status:      models.StatusActive,
	}
}

func (v *Verifier) toCache(ctx context.Context, key string, p *models.Principal, expiresAt time.Time) {
	ttl := v.cacheTTL
	if remaining := expiresAt.Sub(v.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(cachedPrincipal{
		ID:          p.ID,
		Email:       p.Email,
		TenantID:    p.TenantID,
		Role:        p.Role.String(),
		Permissions: p.Permissions.Slice(),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Encoding token cache entry failed")
		return
	}
	if err := v.cache.SetWithTTL(ctx, key, raw, ttl); err != nil {
		// Write-through is best effort; the next request re-verifies.
		logging.Warn().Err(err).Msg("Token cache write failed")
	}
}

// fingerprint returns the hex SHA-256 of the raw token.
func fingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
