// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package dispatch

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

const deadLetterKeyPrefix = "dlq:"

// ErrEntryNotFound is returned when a dead-letter entry does not exist.
var ErrEntryNotFound = errors.New("dead-letter entry not found")

// DeadLetterStore is the durable inspection set for jobs that exhausted
// their retries. Entries outlive process restarts and are removed only by
// an operator.
type DeadLetterStore struct {
	db *badger.DB
}

// OpenDeadLetterStore opens (or creates) the badger store at path.
// An empty path opens an in-memory store, for tests.
func OpenDeadLetterStore(path string) (*DeadLetterStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening dead-letter store: %w", err)
	}

	s := &DeadLetterStore{db: db}
	if n, err := s.Count(); err == nil {
		metrics.DeadLetterEntries.Set(float64(n))
	}
	return s, nil
}

// Close closes the underlying database.
func (s *DeadLetterStore) Close() error {
	return s.db.Close()
}

// RunGC performs one value-log garbage collection pass. badger signals
// "nothing to collect" with ErrNoRewrite, which is not a failure. GC is
// unavailable for in-memory stores.
func (s *DeadLetterStore) RunGC() error {
	if s.db.Opts().InMemory {
		return nil
	}
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("dead-letter store GC: %w", err)
	}
	return nil
}

// Add records an exhausted job. Re-adding the same job id overwrites the
// previous entry, which keeps redelivered poison messages idempotent.
func (s *DeadLetterStore) Add(entry *models.DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding dead-letter entry: %w", err)
	}

	key := []byte(deadLetterKeyPrefix + entry.JobID.String())
	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(key)
		isNew := errors.Is(getErr, badger.ErrKeyNotFound)
		if setErr := txn.Set(key, data); setErr != nil {
			return setErr
		}
		if isNew {
			metrics.DeadLetterEntries.Inc()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing dead-letter entry: %w", err)
	}
	return nil
}

// Get returns one entry by job id.
func (s *DeadLetterStore) Get(jobID uuid.UUID) (*models.DeadLetterEntry, error) {
	var entry models.DeadLetterEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deadLetterKeyPrefix + jobID.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns up to limit entries in key order.
func (s *DeadLetterStore) List(limit int) ([]*models.DeadLetterEntry, error) {
	entries := make([]*models.DeadLetterEntry, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(deadLetterKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(entries) < limit; it.Next() {
			var entry models.DeadLetterEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing dead-letter entries: %w", err)
	}
	return entries, nil
}

// Delete removes an entry after an operator resolved it.
func (s *DeadLetterStore) Delete(jobID uuid.UUID) error {
	key := []byte(deadLetterKeyPrefix + jobID.String())
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		metrics.DeadLetterEntries.Dec()
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Count returns the number of stored entries.
func (s *DeadLetterStore) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(deadLetterKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
