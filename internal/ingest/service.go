// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package ingest implements the transactional ingestion pipeline: validate,
// enrich, commit atomically, then hand off to the asynchronous stages.
//
// The commit boundary is strict. Interaction insert and customer-aggregate
// update happen in one storage transaction; job dispatch and real-time
// fan-out happen after the commit and can never fail a request that already
// committed.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/database"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
	"github.com/attune-cx/attune/internal/validation"
)

// Dispatcher enqueues analysis jobs after commit.
type Dispatcher interface {
	Enqueue(ctx context.Context, job *models.AnalysisJob) error
}

// Broadcaster fans a committed interaction out to the tenant's live
// subscribers.
type Broadcaster interface {
	BroadcastToTenant(tenantID string, event models.InteractionCreatedEvent)
}

// Service is the ingestion pipeline.
type Service struct {
	store      *database.Store
	dispatcher Dispatcher
	broadcast  Broadcaster

	chunkSize     int
	maxBatchItems int

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the enrichment clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the ingestion pipeline.
func NewService(store *database.Store, dispatcher Dispatcher, broadcast Broadcaster, chunkSize, maxBatchItems int, opts ...Option) *Service {
	s := &Service{
		store:         store,
		dispatcher:    dispatcher,
		broadcast:     broadcast,
		chunkSize:     chunkSize,
		maxBatchItems: maxBatchItems,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest commits one interaction for the principal's tenant and returns it.
//
// On success the sentiment job has been handed to the dispatcher and the
// fan-out event published, but neither is part of the success contract:
// their failures are logged and surface through metrics only.
func (s *Service) Ingest(ctx context.Context, principal *models.Principal, raw *models.RawInteraction) (*models.Interaction, error) {
	if verr := validation.ValidateStruct(raw); verr != nil {
		metrics.IngestRejected.WithLabelValues("validation").Inc()
		return nil, faults.Validation("invalid interaction payload", verr.FieldErrors()...)
	}

	in := s.enrich(principal.TenantID, raw)

	start := s.now()
	if err := s.store.InsertInteraction(ctx, in); err != nil {
		if faults.IsKind(err, faults.KindNotFound) {
			metrics.IngestRejected.WithLabelValues("not_found").Inc()
			return nil, err
		}
		metrics.IngestRejected.WithLabelValues("storage").Inc()
		return nil, faults.Transient("committing interaction", err)
	}
	metrics.IngestTxDuration.Observe(time.Since(start).Seconds())
	metrics.IngestAccepted.WithLabelValues("single").Inc()

	s.afterCommit(ctx, in, models.PriorityRealtime)
	return in, nil
}

// enrich converts a validated payload into a committed-form interaction:
// server-assigned id, tenant from the verified principal, processing
// timestamp from the server clock.
func (s *Service) enrich(tenantID string, raw *models.RawInteraction) *models.Interaction {
	return &models.Interaction{
		ID:          uuid.New(),
		CustomerID:  raw.CustomerID,
		TenantID:    tenantID,
		Timestamp:   raw.Timestamp.UTC(),
		Channel:     raw.Channel,
		EventType:   raw.EventType,
		Content:     raw.Content,
		Metadata:    raw.Metadata,
		ProcessedAt: s.now().UTC(),
	}
}

// afterCommit runs the post-commit stages for one interaction.
func (s *Service) afterCommit(ctx context.Context, in *models.Interaction, priority models.JobPriority) {
	if in.Content != "" {
		job := models.NewAnalysisJob(in, priority)
		if err := s.dispatcher.Enqueue(ctx, job); err != nil {
			// The interaction is committed; the scoring job is lost until an
			// operator replays it. This must be loud.
			metrics.JobEnqueueFailures.Inc()
			logging.Error().Err(err).
				Str("interaction_id", in.ID.String()).
				Str("tenant_id", in.TenantID).
				Msg("Analysis job dispatch failed after commit")
		}
	}

	if s.broadcast != nil {
		s.broadcast.BroadcastToTenant(in.TenantID, models.NewInteractionCreatedEvent(in))
	}
}
