// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/models"
)

func newTestDeadLetterStore(t *testing.T) *DeadLetterStore {
	t.Helper()
	store, err := OpenDeadLetterStore("")
	if err != nil {
		t.Fatalf("opening in-memory dead-letter store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry(jobID uuid.UUID) *models.DeadLetterEntry {
	return &models.DeadLetterEntry{
		JobID:         jobID,
		InteractionID: uuid.New(),
		TenantID:      "tenant-a",
		Priority:      "realtime",
		Attempts:      4,
		LastError:     "scoring service unavailable",
		FirstFailedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		DeadAt:        time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
	}
}

func TestDeadLetterAddGet(t *testing.T) {
	store := newTestDeadLetterStore(t)
	jobID := uuid.New()

	if err := store.Add(testEntry(jobID)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := store.Get(jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.JobID != jobID {
		t.Errorf("JobID = %s, want %s", got.JobID, jobID)
	}
	if got.Attempts != 4 || got.LastError != "scoring service unavailable" {
		t.Errorf("entry round trip mismatch: %+v", got)
	}
	if !got.DeadAt.Equal(time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("DeadAt = %s", got.DeadAt)
	}
}

func TestDeadLetterAddOverwritesRedelivery(t *testing.T) {
	store := newTestDeadLetterStore(t)
	jobID := uuid.New()

	first := testEntry(jobID)
	if err := store.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	second := testEntry(jobID)
	second.Attempts = 5
	if err := store.Add(second); err != nil {
		t.Fatalf("re-Add: %v", err)
	}

	got, err := store.Get(jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attempts != 5 {
		t.Errorf("Attempts = %d, want overwrite to 5", got.Attempts)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1 after redelivery", n)
	}
}

func TestDeadLetterGetMissing(t *testing.T) {
	store := newTestDeadLetterStore(t)

	if _, err := store.Get(uuid.New()); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestDeadLetterList(t *testing.T) {
	store := newTestDeadLetterStore(t)

	for i := 0; i < 5; i++ {
		if err := store.Add(testEntry(uuid.New())); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	entries, err := store.List(3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want limit of 3", len(entries))
	}

	entries, err = store.List(100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("len(entries) = %d, want all 5", len(entries))
	}
}

func TestDeadLetterDelete(t *testing.T) {
	store := newTestDeadLetterStore(t)
	jobID := uuid.New()

	if err := store.Add(testEntry(jobID)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Delete(jobID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(jobID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v, want ErrEntryNotFound after delete", err)
	}
	if err := store.Delete(jobID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("double delete err = %v, want ErrEntryNotFound", err)
	}
}

func TestDeadLetterCount(t *testing.T) {
	store := newTestDeadLetterStore(t)

	if n, err := store.Count(); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v, want 0", n, err)
	}

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if err := store.Add(testEntry(ids[i])); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if n, _ := store.Count(); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	if err := store.Delete(ids[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := store.Count(); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestDeadLetterGCInMemoryNoop(t *testing.T) {
	store := newTestDeadLetterStore(t)
	if err := store.RunGC(); err != nil {
		t.Errorf("RunGC on in-memory store: %v", err)
	}
}
