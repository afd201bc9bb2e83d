// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package ratelimit implements distributed fixed-window rate limiting over
// the shared coordination store.
//
// Three independent scopes are enforced, each with its own counter keyspace
// so bursts in one scope cannot starve another:
//
//   - global: per-source-address, coarse, applied to every request
//   - principal: per-authenticated-principal, finer
//   - auth: per-source-address on authentication endpoints, strict
//
// When the coordination store is unreachable each scope follows its
// configured policy: fail-open scopes degrade to a process-local limiter
// with the same ceiling (availability over precision), fail-closed scopes
// deny outright.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/coordination"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
)

// Scope identifies one limiter keyspace.
type Scope string

const (
	// ScopeGlobal is the coarse per-source-address ceiling.
	ScopeGlobal Scope = "global"

	// ScopePrincipal is the per-authenticated-principal ceiling.
	ScopePrincipal Scope = "principal"

	// ScopeAuth is the strict ceiling for authentication endpoints.
	ScopeAuth Scope = "auth"
)

// Limiter enforces the configured ceilings against the coordination store.
type Limiter struct {
	store    coordination.Store
	scopes   map[Scope]config.ScopeLimitConfig
	disabled bool

	// fallback holds process-local limiters, created lazily, used only
	// while a fail-open scope cannot reach the store.
	fallback   map[string]*fallbackEntry
	fallbackMu sync.Mutex

	stopClean chan struct{}
	closeOnce sync.Once
}

// fallbackEntry wraps a local limiter with last access time for cleanup.
type fallbackEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New creates a limiter for the three configured scopes.
func New(store coordination.Store, cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		store:    store,
		disabled: cfg.Disabled,
		scopes: map[Scope]config.ScopeLimitConfig{
			ScopeGlobal:    cfg.Global,
			ScopePrincipal: cfg.Principal,
			ScopeAuth:      cfg.Auth,
		},
		fallback:  make(map[string]*fallbackEntry),
		stopClean: make(chan struct{}),
	}
	go l.startCleanup(5 * time.Minute)
	return l
}

// Allow checks the identity against the scope's ceiling. It returns nil when
// the request is admitted, a faults.KindThrottled fault when the ceiling is
// exceeded (carrying the remaining-window hint), and follows the scope's
// fail-open/fail-closed policy when the store errors.
func (l *Limiter) Allow(ctx context.Context, scope Scope, identity string) error {
	if l.disabled {
		return nil
	}

	sc, ok := l.scopes[scope]
	if !ok {
		return nil
	}

	key := coordination.CounterKey(string(scope), identity)
	count, remaining, err := l.store.Incr(ctx, key, sc.Window)
	if err != nil {
		return l.applyPolicy(scope, sc, identity, err)
	}

	if count > int64(sc.Requests) {
		metrics.RateLimitDenials.WithLabelValues(string(scope)).Inc()
		return faults.Throttled(remaining)
	}
	return nil
}

// applyPolicy handles a store failure according to the scope's policy.
func (l *Limiter) applyPolicy(scope Scope, sc config.ScopeLimitConfig, identity string, err error) error {
	if sc.Policy == config.FailClosed {
		metrics.RateLimitStoreErrors.WithLabelValues(string(scope), "fail_closed").Inc()
		logging.Warn().Err(err).Str("scope", string(scope)).Msg("coordination store unreachable, failing closed")
		return faults.Throttled(sc.Window)
	}

	metrics.RateLimitStoreErrors.WithLabelValues(string(scope), "fail_open").Inc()
	logging.Warn().Err(err).Str("scope", string(scope)).Msg("coordination store unreachable, using local fallback")

	if l.localAllow(scope, sc, identity) {
		return nil
	}
	metrics.RateLimitDenials.WithLabelValues(string(scope)).Inc()
	return faults.Throttled(sc.Window)
}

// localAllow consults the process-local fallback limiter for the identity.
// The fallback approximates the distributed ceiling per instance; it is a
// degraded mode, not the primary mechanism.
func (l *Limiter) localAllow(scope Scope, sc config.ScopeLimitConfig, identity string) bool {
	key := string(scope) + ":" + identity

	l.fallbackMu.Lock()
	entry, exists := l.fallback[key]
	if !exists {
		entry = &fallbackEntry{
			limiter: rate.NewLimiter(rate.Every(sc.Window/time.Duration(sc.Requests)), sc.Requests),
		}
		l.fallback[key] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	l.fallbackMu.Unlock()

	return limiter.Allow()
}

// startCleanup periodically removes stale fallback limiters.
func (l *Limiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopClean:
			return
		}
	}
}

// cleanup removes fallback limiters that haven't been used in the last hour.
func (l *Limiter) cleanup() {
	l.fallbackMu.Lock()
	defer l.fallbackMu.Unlock()

	threshold := time.Now().Add(-1 * time.Hour)
	for key, entry := range l.fallback {
		if entry.lastAccess.Before(threshold) {
			delete(l.fallback, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stopClean) })
}
