// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "attune_test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCustomer(t *testing.T, store *Store, tenantID string) string {
	t.Helper()
	id := uuid.NewString()
	err := store.CreateCustomer(context.Background(), &models.Customer{
		ID:        id,
		TenantID:  tenantID,
		Name:      "Test Customer",
		Email:     "customer@example.com",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seeding customer: %v", err)
	}
	return id
}

func newInteraction(tenantID, customerID string, ts time.Time) *models.Interaction {
	return &models.Interaction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		TenantID:    tenantID,
		Timestamp:   ts,
		Channel:     models.ChannelWeb,
		EventType:   models.EventMessage,
		Content:     "the new dashboard is excellent",
		Metadata:    map[string]string{"source": "test"},
		ProcessedAt: time.Now().UTC(),
	}
}

func TestInsertInteractionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	ts := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	in := newInteraction("tenant-a", customerID, ts)
	if err := store.InsertInteraction(ctx, in); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	got, err := store.GetInteraction(ctx, "tenant-a", in.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if got.CustomerID != customerID {
		t.Errorf("CustomerID = %s, want %s", got.CustomerID, customerID)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %s, want %s", got.Timestamp, ts)
	}
	if got.Content != in.Content {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.Sentiment != nil {
		t.Errorf("fresh interaction already has sentiment: %+v", got.Sentiment)
	}
}

func TestInsertInteractionUnknownCustomerIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := newInteraction("tenant-a", uuid.NewString(), time.Now().UTC())
	err := store.InsertInteraction(ctx, in)
	if !faults.IsKind(err, faults.KindNotFound) {
		t.Fatalf("err = %v, want not-found", err)
	}

	// Nothing partial: the interaction row must not exist either.
	if _, err := store.GetInteraction(ctx, "tenant-a", in.ID); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("interaction row leaked past a rolled-back transaction: %v", err)
	}
}

func TestInsertInteractionUpdatesAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	t1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{t2, t1} { // deliberately out of order
		if err := store.InsertInteraction(ctx, newInteraction("tenant-a", customerID, ts)); err != nil {
			t.Fatalf("InsertInteraction: %v", err)
		}
	}

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", agg.InteractionCount)
	}
	if !agg.LastSeenAt.Equal(t2) {
		t.Errorf("LastSeenAt = %s, want %s (never moves backwards)", agg.LastSeenAt, t2)
	}
}

func TestConcurrentInsertsKeepAggregateExact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.InsertInteraction(ctx, newInteraction("tenant-a", customerID, time.Now().UTC()))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
	}

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.InteractionCount != writers {
		t.Errorf("InteractionCount = %d, want %d", agg.InteractionCount, writers)
	}
}

func TestInsertInteractionsChunkIsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	good1 := newInteraction("tenant-a", customerID, time.Now().UTC())
	bad := newInteraction("tenant-a", uuid.NewString(), time.Now().UTC())
	good2 := newInteraction("tenant-a", customerID, time.Now().UTC())

	err := store.InsertInteractions(ctx, []*models.Interaction{good1, bad, good2})
	if !faults.IsKind(err, faults.KindNotFound) {
		t.Fatalf("err = %v, want not-found from the bad item", err)
	}

	// The whole chunk rolled back, including the item inserted before the
	// failure.
	if _, err := store.GetInteraction(ctx, "tenant-a", good1.ID); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("good1 leaked past rollback: %v", err)
	}
	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.InteractionCount != 0 {
		t.Errorf("InteractionCount = %d after rollback, want 0", agg.InteractionCount)
	}
}

func TestInsertInteractionsEmptyChunk(t *testing.T) {
	store := newTestStore(t)
	if err := store.InsertInteractions(context.Background(), nil); err != nil {
		t.Errorf("empty chunk: %v", err)
	}
}

func TestAttachSentiment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	in := newInteraction("tenant-a", customerID, time.Now().UTC())
	if err := store.InsertInteraction(ctx, in); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	verdict := &models.SentimentResult{
		Label:      models.SentimentPositive,
		Confidence: 0.9,
		Scores:     models.SentimentScores{Positive: 0.8, Negative: 0.1, Neutral: 0.1},
	}
	if err := store.AttachSentiment(ctx, in.ID, verdict); err != nil {
		t.Fatalf("AttachSentiment: %v", err)
	}

	got, err := store.GetInteraction(ctx, "tenant-a", in.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if got.Sentiment == nil || got.Sentiment.Label != models.SentimentPositive {
		t.Fatalf("Sentiment = %+v", got.Sentiment)
	}
	if got.Sentiment.Scores.Positive != 0.8 {
		t.Errorf("Scores.Positive = %v", got.Sentiment.Scores.Positive)
	}

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.SentimentSamples != 1 {
		t.Errorf("SentimentSamples = %d, want 1", agg.SentimentSamples)
	}
	if agg.AvgSentiment != 0.8 {
		t.Errorf("AvgSentiment = %v, want polarity 0.8", agg.AvgSentiment)
	}
}

func TestAttachSentimentIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	in := newInteraction("tenant-a", customerID, time.Now().UTC())
	if err := store.InsertInteraction(ctx, in); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	verdict := &models.SentimentResult{
		Label:      models.SentimentNegative,
		Confidence: 0.7,
		Scores:     models.SentimentScores{Positive: 0.1, Negative: 0.6, Neutral: 0.3},
	}
	// A redelivered job attaches the same verdict twice.
	for i := 0; i < 2; i++ {
		if err := store.AttachSentiment(ctx, in.ID, verdict); err != nil {
			t.Fatalf("AttachSentiment attempt %d: %v", i, err)
		}
	}

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.SentimentSamples != 1 {
		t.Errorf("SentimentSamples = %d, want the redelivery ignored", agg.SentimentSamples)
	}
	if agg.AvgSentiment != -0.6 {
		t.Errorf("AvgSentiment = %v, want -0.6", agg.AvgSentiment)
	}
}

func TestAttachSentimentRunningAverage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	verdicts := []*models.SentimentResult{
		{Label: models.SentimentPositive, Scores: models.SentimentScores{Positive: 1.0}},
		{Label: models.SentimentNegative, Scores: models.SentimentScores{Negative: 0.5}},
	}
	for _, v := range verdicts {
		in := newInteraction("tenant-a", customerID, time.Now().UTC())
		if err := store.InsertInteraction(ctx, in); err != nil {
			t.Fatalf("InsertInteraction: %v", err)
		}
		if err := store.AttachSentiment(ctx, in.ID, v); err != nil {
			t.Fatalf("AttachSentiment: %v", err)
		}
	}

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.SentimentSamples != 2 {
		t.Errorf("SentimentSamples = %d, want 2", agg.SentimentSamples)
	}
	// (1.0 + -0.5) / 2
	if agg.AvgSentiment != 0.25 {
		t.Errorf("AvgSentiment = %v, want 0.25", agg.AvgSentiment)
	}
}

func TestAttachSentimentMissingInteraction(t *testing.T) {
	store := newTestStore(t)
	err := store.AttachSentiment(context.Background(), uuid.New(), &models.SentimentResult{
		Label: models.SentimentNeutral,
	})
	if err != nil {
		t.Errorf("attaching to a missing interaction should be a no-op, got %v", err)
	}
}

func TestAggregateForQuietCustomer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	agg, err := store.Aggregate(ctx, "tenant-a", customerID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.InteractionCount != 0 || agg.SentimentSamples != 0 {
		t.Errorf("quiet customer aggregate = %+v, want zeros", agg)
	}
}

func TestAggregateUnknownCustomer(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Aggregate(context.Background(), "tenant-a", uuid.NewString())
	if !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestTenantScopingOnReads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	customerID := seedCustomer(t, store, "tenant-a")

	in := newInteraction("tenant-a", customerID, time.Now().UTC())
	if err := store.InsertInteraction(ctx, in); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	if _, err := store.GetInteraction(ctx, "tenant-b", in.ID); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("cross-tenant GetInteraction = %v, want not-found", err)
	}
	if _, err := store.Aggregate(ctx, "tenant-b", customerID); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("cross-tenant Aggregate = %v, want not-found", err)
	}
	exists, err := store.CustomerExists(ctx, "tenant-b", customerID)
	if err != nil {
		t.Fatalf("CustomerExists: %v", err)
	}
	if exists {
		t.Error("customer visible from another tenant")
	}
}

func TestPrincipalLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &PrincipalRecord{
		Principal: models.Principal{
			ID:          uuid.NewString(),
			Email:       "analyst@example.com",
			Role:        models.RoleAnalyst,
			Permissions: models.NewPermissionSet(models.PermInteractionsWrite, models.PermInteractionsRead),
			TenantID:    "tenant-a",
			Status:      models.StatusActive,
		},
		PasswordHash: "$2a$10$fakehashfortesting",
	}
	if err := store.CreatePrincipal(ctx, rec); err != nil {
		t.Fatalf("CreatePrincipal: %v", err)
	}

	byID, err := store.PrincipalByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("PrincipalByID: %v", err)
	}
	if byID.Email != rec.Email || byID.Role != models.RoleAnalyst || byID.TenantID != "tenant-a" {
		t.Errorf("PrincipalByID = %+v", byID)
	}
	if !byID.Permissions.ContainsAll(models.PermInteractionsWrite, models.PermInteractionsRead) {
		t.Errorf("Permissions = %v", byID.Permissions)
	}

	byEmail, err := store.PrincipalByEmail(ctx, rec.Email)
	if err != nil {
		t.Fatalf("PrincipalByEmail: %v", err)
	}
	if byEmail.PasswordHash != rec.PasswordHash {
		t.Errorf("PasswordHash = %q", byEmail.PasswordHash)
	}

	if err := store.UpdatePrincipalStatus(ctx, rec.ID, models.StatusSuspended); err != nil {
		t.Fatalf("UpdatePrincipalStatus: %v", err)
	}
	suspended, err := store.PrincipalByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("PrincipalByID after suspend: %v", err)
	}
	if suspended.Status != models.StatusSuspended {
		t.Errorf("Status = %s, want suspended", suspended.Status)
	}
}

func TestPrincipalNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.PrincipalByID(ctx, uuid.NewString()); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("PrincipalByID = %v, want not-found", err)
	}
	if _, err := store.PrincipalByEmail(ctx, "nobody@example.com"); !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("PrincipalByEmail = %v, want not-found", err)
	}
}

func TestJobAuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &models.AnalysisJob{
		ID:            uuid.New(),
		InteractionID: uuid.New(),
		TenantID:      "tenant-a",
		Text:          "score me",
		Priority:      models.PriorityRealtime,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := store.RecordJobQueued(ctx, job); err != nil {
		t.Fatalf("RecordJobQueued: %v", err)
	}
	// Duplicate dispatch audit is a no-op, not an error.
	if err := store.RecordJobQueued(ctx, job); err != nil {
		t.Fatalf("duplicate RecordJobQueued: %v", err)
	}

	if err := store.RecordJobOutcome(ctx, job.ID, models.JobSucceeded, 2, ""); err != nil {
		t.Fatalf("RecordJobOutcome: %v", err)
	}
	if err := store.RecordJobOutcome(ctx, job.ID, models.JobDead, 4, "scoring service unavailable"); err != nil {
		t.Fatalf("RecordJobOutcome dead: %v", err)
	}
}
