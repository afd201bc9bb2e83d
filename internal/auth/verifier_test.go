// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attune-cx/attune/internal/coordination"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/models"
)

// fakeDirectory is a scriptable Directory for verifier tests.
type fakeDirectory struct {
	principals map[string]*models.Principal
	err        error
	lookups    int
}

func (d *fakeDirectory) PrincipalByID(_ context.Context, id string) (*models.Principal, error) {
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.principals[id]
	if !ok {
		return nil, faults.NotFound("principal not found")
	}
	cp := *p
	return &cp, nil
}

func newVerifierFixture(t *testing.T, cacheTTL time.Duration) (*Verifier, *fakeDirectory, *coordination.MemoryStore, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	store := coordination.NewMemoryStoreWithClock(func() time.Time { return *clock })
	dir := &fakeDirectory{principals: map[string]*models.Principal{
		"p-123": testPrincipal(),
	}}
	tm := newTestTokenManager(t, 24*time.Hour)
	tm.now = func() time.Time { return *clock }

	v := NewVerifier(tm, store, dir, cacheTTL)
	v.now = func() time.Time { return *clock }
	return v, dir, store, clock
}

func TestVerifyValidToken(t *testing.T) {
	v, _, _, _ := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())

	p, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.ID != "p-123" || p.TenantID != "tenant-a" {
		t.Errorf("principal = %+v, want p-123/tenant-a", p)
	}
	if !p.Permissions.Contains(models.PermInteractionsWrite) {
		t.Error("permissions lost during verification")
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	v, _, _, _ := newVerifierFixture(t, 5*time.Minute)
	_, err := v.Verify(context.Background(), "garbage")
	if !faults.IsKind(err, faults.KindUnauthenticated) {
		t.Fatalf("Verify(garbage) = %v, want unauthenticated", err)
	}
}

func TestVerifyUnknownSubject(t *testing.T) {
	v, dir, _, _ := newVerifierFixture(t, 5*time.Minute)
	delete(dir.principals, "p-123")
	token, _ := v.tokens.Generate(testPrincipal())

	_, err := v.Verify(context.Background(), token)
	if !faults.IsKind(err, faults.KindUnauthenticated) {
		t.Fatalf("Verify = %v, want unauthenticated", err)
	}
}

func TestVerifyInactiveAccount(t *testing.T) {
	v, dir, _, _ := newVerifierFixture(t, 5*time.Minute)
	dir.principals["p-123"].Status = models.StatusSuspended
	token, _ := v.tokens.Generate(testPrincipal())

	_, err := v.Verify(context.Background(), token)
	if !faults.IsKind(err, faults.KindUnauthenticated) {
		t.Fatalf("Verify on suspended account = %v, want unauthenticated", err)
	}
}

func TestVerifyDirectoryOutageIsTransient(t *testing.T) {
	v, dir, _, _ := newVerifierFixture(t, 5*time.Minute)
	dir.err = errors.New("db down")
	token, _ := v.tokens.Generate(testPrincipal())

	_, err := v.Verify(context.Background(), token)
	if !faults.IsKind(err, faults.KindTransient) {
		t.Fatalf("Verify during directory outage = %v, want transient", err)
	}
}

func TestVerifyUsesCacheOnSecondCall(t *testing.T) {
	v, dir, _, _ := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())
	ctx := context.Background()

	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if dir.lookups != 1 {
		t.Errorf("directory lookups = %d, want 1 (second call served from cache)", dir.lookups)
	}
}

func TestVerifyCacheTrustBound(t *testing.T) {
	// A suspended account keeps working from cache for at most the cache
	// TTL, then the forced re-verification rejects it.
	v, dir, _, clock := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())
	ctx := context.Background()

	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("initial Verify: %v", err)
	}

	dir.principals["p-123"].Status = models.StatusSuspended

	// Inside the trust bound the cached verdict still admits.
	*clock = clock.Add(4 * time.Minute)
	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("Verify within trust bound: %v", err)
	}

	// Past the bound the cache entry expired and re-verification sees the
	// suspension.
	*clock = clock.Add(2 * time.Minute)
	_, err := v.Verify(ctx, token)
	if !faults.IsKind(err, faults.KindUnauthenticated) {
		t.Fatalf("Verify past trust bound = %v, want unauthenticated", err)
	}
}

func TestVerifyCacheTTLBoundedByTokenExpiry(t *testing.T) {
	// Token expires in 2 minutes; a 5-minute cache TTL must not outlive it.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := coordination.NewMemoryStoreWithClock(func() time.Time { return *clock })
	dir := &fakeDirectory{principals: map[string]*models.Principal{"p-123": testPrincipal()}}
	tm := newTestTokenManager(t, 2*time.Minute)
	tm.now = func() time.Time { return *clock }
	v := NewVerifier(tm, store, dir, 5*time.Minute)
	v.now = func() time.Time { return *clock }

	token, _ := tm.Generate(testPrincipal())
	ctx := context.Background()

	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("initial Verify: %v", err)
	}

	// 3 minutes later the token itself is expired; the cache entry must be
	// gone too, and full verification rejects.
	*clock = clock.Add(3 * time.Minute)
	_, err := v.Verify(ctx, token)
	if !faults.IsKind(err, faults.KindUnauthenticated) {
		t.Fatalf("Verify after token expiry = %v, want unauthenticated", err)
	}
}

func TestVerifyCacheOutageDegradesToFullVerification(t *testing.T) {
	v, dir, store, _ := newVerifierFixture(t, 5*time.Minute)
	store.FailWith = errors.New("kv unreachable")
	token, _ := v.tokens.Generate(testPrincipal())
	ctx := context.Background()

	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("Verify during cache outage: %v", err)
	}
	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("second Verify during cache outage: %v", err)
	}
	if dir.lookups != 2 {
		t.Errorf("directory lookups = %d, want 2 (no caching during outage)", dir.lookups)
	}
}

func TestVerifyFailuresAreNotCached(t *testing.T) {
	v, dir, _, _ := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())
	ctx := context.Background()

	delete(dir.principals, "p-123")
	if _, err := v.Verify(ctx, token); err == nil {
		t.Fatal("expected failure for unknown subject")
	}

	// Restoring the account makes the same token verify; a cached failure
	// would keep rejecting it.
	dir.principals["p-123"] = testPrincipal()
	if _, err := v.Verify(ctx, token); err != nil {
		t.Errorf("Verify after directory restore: %v", err)
	}
}

func TestVerifyCorruptCacheEntry(t *testing.T) {
	v, _, store, _ := newVerifierFixture(t, 5*time.Minute)
	token, _ := v.tokens.Generate(testPrincipal())
	ctx := context.Background()

	key := coordination.SanitizeKey("token." + fingerprint(token))
	store.SetWithTTL(ctx, key, []byte("{not json"), time.Minute)

	if _, err := v.Verify(ctx, token); err != nil {
		t.Fatalf("Verify with corrupt cache entry: %v", err)
	}
}
