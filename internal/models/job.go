// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobPriority selects the dispatch lane for an analysis job. Batch-originated
// jobs ride a lower-priority lane so interactive ingestion latency is
// protected under load.
type JobPriority string

const (
	// PriorityRealtime is for single-item ingestions.
	PriorityRealtime JobPriority = "realtime"

	// PriorityBatch is for batch-originated ingestions.
	PriorityBatch JobPriority = "batch"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	// JobQueued means the job has been published and not yet attempted.
	JobQueued JobStatus = "queued"

	// JobInFlight means a worker is processing the job.
	JobInFlight JobStatus = "in_flight"

	// JobSucceeded means the sentiment result was attached.
	JobSucceeded JobStatus = "succeeded"

	// JobDead means retries were exhausted and the job was moved to the
	// dead-letter inspection set.
	JobDead JobStatus = "dead"
)

// AnalysisJob is the unit of asynchronous sentiment-scoring work created
// after a successful ingestion commit.
type AnalysisJob struct {
	ID            uuid.UUID   `json:"id"`
	InteractionID uuid.UUID   `json:"interactionId"`
	TenantID      string      `json:"tenantId"`
	Text          string      `json:"text"`
	Priority      JobPriority `json:"priority"`
	Attempts      int         `json:"attempts"`
	EnqueuedAt    time.Time   `json:"enqueued_at"`
}

// NewAnalysisJob creates a queued job for the given interaction.
func NewAnalysisJob(in *Interaction, priority JobPriority) *AnalysisJob {
	return &AnalysisJob{
		ID:            uuid.New(),
		InteractionID: in.ID,
		TenantID:      in.TenantID,
		Text:          in.Content,
		Priority:      priority,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// DeadLetterEntry is an exhausted job retained for manual inspection.
// Entries are append-only; operators resolve them out of band.
type DeadLetterEntry struct {
	JobID         uuid.UUID `json:"job_id"`
	InteractionID uuid.UUID `json:"interaction_id"`
	TenantID      string    `json:"tenant_id"`
	Priority      string    `json:"priority"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	DeadAt        time.Time `json:"dead_at"`
}
