// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package coordination

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-instance
// development runs. It accepts an injectable clock so window and TTL
// behavior can be tested deterministically.
//
// It must not be used when the service runs as multiple instances: counters
// held here are invisible to the other instances.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	values   map[string]memoryValue
	now      func() time.Time

	// FailWith, when set, makes every call return this error. Tests use it
	// to exercise fail-open/fail-closed limiter policies.
	FailWith error
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store using the real clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store with a custom clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		values:   make(map[string]memoryValue),
		now:      now,
	}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return 0, 0, s.FailWith
	}

	now := s.now()
	windowStart := now.Truncate(window)
	wkey := key + "." + windowStart.UTC().Format("20060102T150405")

	s.counters[wkey]++
	return s.counters[wkey], windowStart.Add(window).Sub(now), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}

	v, ok := s.values[key]
	if !ok || !s.now().Before(v.expiresAt) {
		delete(s.values, key)
		return nil, ErrNotFound
	}
	return v.data, nil
}

// SetWithTTL implements Store.
func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}

	s.values[key] = memoryValue{data: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}

	delete(s.values, key)
	return nil
}
