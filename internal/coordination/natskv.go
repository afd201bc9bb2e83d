// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package coordination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/attune-cx/attune/internal/logging"
)

// casMaxAttempts bounds the optimistic-concurrency retry loop in Incr.
// Contention on a single counter key beyond this depth means the store is
// effectively overloaded and the error surfaces to the limiter's policy.
const casMaxAttempts = 10

// KVStore implements Store on a NATS JetStream key-value bucket.
// Atomic increments use create-or-update with revision checks (CAS), which
// JetStream guarantees across all connected instances.
type KVStore struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// NewKVStore wraps an existing JetStream KV bucket.
func NewKVStore(kv jetstream.KeyValue) *KVStore {
	return &KVStore{kv: kv, now: time.Now}
}

// EnsureBucket creates the named bucket if missing and returns a store bound
// to it. TTL is the bucket-wide entry expiry used for garbage collection;
// window correctness does not depend on it because window starts are folded
// into counter keys.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVStore, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	return NewKVStore(kv), nil
}

// Incr atomically increments the fixed-window counter for key.
func (s *KVStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()
	windowStart := now.Truncate(window)
	remaining := windowStart.Add(window).Sub(now)
	wkey := key + "." + windowStart.UTC().Format("20060102T150405")

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, wkey)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// First hit in this window.
			if _, cerr := s.kv.Create(ctx, wkey, []byte("1")); cerr != nil {
				if errors.Is(cerr, jetstream.ErrKeyExists) {
					continue // lost the race, re-read
				}
				return 0, remaining, fmt.Errorf("create counter %s: %w", wkey, cerr)
			}
			return 1, remaining, nil
		}
		if err != nil {
			return 0, remaining, fmt.Errorf("get counter %s: %w", wkey, err)
		}

		count, perr := strconv.ParseInt(string(entry.Value()), 10, 64)
		if perr != nil {
			// Corrupted counter: overwrite rather than deny every request
			// in the window.
			logging.Warn().Str("key", wkey).Msg("resetting unparsable rate counter")
			count = 0
		}
		count++

		_, err = s.kv.Update(ctx, wkey, []byte(strconv.FormatInt(count, 10)), entry.Revision())
		if err == nil {
			return count, remaining, nil
		}
		// Revision conflict: another instance incremented first. Re-read.
	}

	return 0, remaining, fmt.Errorf("incr %s: CAS contention exhausted after %d attempts", wkey, casMaxAttempts)
}

// Get returns the value stored under key, or ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	value, live := unwrapExpiry(entry.Value(), s.now())
	if !live {
		// Lazy expiry; removal is best-effort.
		_ = s.kv.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return value, nil
}

// SetWithTTL stores value under key.
//
// JetStream KV expiry is bucket-wide, so per-entry TTLs shorter than the
// bucket TTL are enforced by embedding an expiry header in the value; readers
// go through Get on this same type, which strips and honors it.
func (s *KVStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.kv.Put(ctx, key, wrapExpiry(value, s.now().Add(ttl))); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// expiryFormat is the fixed-width prefix used by wrapExpiry.
const expiryFormat = time.RFC3339

// wrapExpiry prefixes a value with its expiry instant and a newline.
func wrapExpiry(value []byte, expiresAt time.Time) []byte {
	prefix := expiresAt.UTC().Format(expiryFormat) + "\n"
	out := make([]byte, 0, len(prefix)+len(value))
	out = append(out, prefix...)
	return append(out, value...)
}

// unwrapExpiry splits a wrapped value, reporting whether it is still live.
func unwrapExpiry(raw []byte, now time.Time) ([]byte, bool) {
	for i, b := range raw {
		if b == '\n' {
			expiresAt, err := time.Parse(expiryFormat, string(raw[:i]))
			if err != nil {
				return raw, true // unwrapped legacy value
			}
			return raw[i+1:], now.Before(expiresAt)
		}
	}
	return raw, true
}
