// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package coordination provides the shared key-value layer used across all
// service instances for distributed rate-limit counters and the
// token-verification cache.
//
// Correctness for concurrently mutated keys (counters) depends on the
// backing store's atomic primitives, never on application-level locking:
// the service runs as multiple instances and process-local state would
// silently under-count.
package coordination

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("coordination: key not found")

// Store is the coordination-store contract. Implementations must make Incr
// atomic across instances.
type Store interface {
	// Incr atomically increments the fixed-window counter identified by key
	// and returns the post-increment count together with the time remaining
	// in the current window.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value under key and expires it after ttl.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// CounterKey builds the counter key for a scope and identity. The store
// implementation folds the window start into the final key so stale windows
// age out of the store instead of being reset in place.
func CounterKey(scope, identity string) string {
	return SanitizeKey(scope) + "." + SanitizeKey(identity)
}

// SanitizeKey maps arbitrary identities (IPv6 addresses, emails) onto the
// character set accepted by NATS KV keys.
func SanitizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
