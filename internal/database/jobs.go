// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/models"
)

// RecordJobQueued writes the audit row for a freshly dispatched job.
// The queue itself lives in JetStream; this table is the durable trail an
// operator queries when tracing a stuck interaction.
func (s *Store) RecordJobQueued(ctx context.Context, job *models.AnalysisJob) error {
	return s.withWriteTx(ctx, "record_job_queued", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analysis_jobs (job_id, interaction_id, tenant_id, priority, status, attempts, enqueued_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (job_id) DO NOTHING`,
			job.ID.String(), job.InteractionID.String(), job.TenantID,
			string(job.Priority), string(models.JobQueued),
			job.EnqueuedAt.UTC(), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("recording queued job: %w", err)
		}
		return nil
	})
}

// RecordJobOutcome advances the audit row's lifecycle state.
func (s *Store) RecordJobOutcome(ctx context.Context, jobID uuid.UUID, status models.JobStatus, attempts int, lastErr string) error {
	return s.withWriteTx(ctx, "record_job_outcome", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE analysis_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			WHERE job_id = ?`,
			string(status), attempts, nullIfEmpty(lastErr), time.Now().UTC(),
			jobID.String(),
		)
		if err != nil {
			return fmt.Errorf("recording job outcome: %w", err)
		}
		return nil
	})
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
