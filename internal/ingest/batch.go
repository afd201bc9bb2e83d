// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
	"github.com/attune-cx/attune/internal/validation"
)

// batchItem pairs an enriched interaction with its position in the
// original request. Failure indexes always refer to the input slice a
// client sent, regardless of how many earlier items were screened out.
type batchItem struct {
	index       int
	interaction *models.Interaction
}

// IngestBatch commits a batch of interactions in chunk-sized transactions.
//
// Items are screened first: payload validation and customer existence are
// checked per item, and rejected items are reported individually without
// disturbing the rest. Surviving items are committed chunk by chunk; a
// storage failure aborts only its own chunk, and every item of that chunk
// is reported failed. Chunks that committed stay committed.
func (s *Service) IngestBatch(ctx context.Context, principal *models.Principal, raws []models.RawInteraction) (*models.BatchResult, error) {
	if len(raws) == 0 {
		return nil, faults.Validation("batch must contain at least one item")
	}
	if len(raws) > s.maxBatchItems {
		return nil, faults.Validation(fmt.Sprintf("batch exceeds %d items", s.maxBatchItems))
	}

	result := &models.BatchResult{
		Successes: make([]uuid.UUID, 0, len(raws)),
	}

	accepted := make([]batchItem, 0, len(raws))
	for i := range raws {
		raw := &raws[i]
		if verr := validation.ValidateStruct(raw); verr != nil {
			metrics.IngestRejected.WithLabelValues("validation").Inc()
			result.Failures = append(result.Failures, models.BatchItemFailure{
				Index:  i,
				Reason: verr.Error(),
			})
			continue
		}

		exists, err := s.store.CustomerExists(ctx, principal.TenantID, raw.CustomerID)
		if err != nil {
			return nil, faults.Transient("screening batch items", err)
		}
		if !exists {
			metrics.IngestRejected.WithLabelValues("not_found").Inc()
			result.Failures = append(result.Failures, models.BatchItemFailure{
				Index:  i,
				Reason: fmt.Sprintf("customer %s not found", raw.CustomerID),
			})
			continue
		}

		accepted = append(accepted, batchItem{index: i, interaction: s.enrich(principal.TenantID, raw)})
	}

	totalChunks := (len(accepted) + s.chunkSize - 1) / s.chunkSize
	for chunkNo := 0; chunkNo*s.chunkSize < len(accepted); chunkNo++ {
		lo := chunkNo * s.chunkSize
		hi := min(lo+s.chunkSize, len(accepted))
		chunk := accepted[lo:hi]

		s.commitChunk(ctx, chunk, result)
		metrics.BatchChunksProcessed.Inc()
		logging.Debug().
			Str("tenant_id", principal.TenantID).
			Int("chunk", chunkNo+1).
			Int("chunks_total", totalChunks).
			Int("accepted", len(result.Successes)).
			Int("rejected", len(result.Failures)).
			Msg("Batch chunk processed")
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Index < result.Failures[j].Index
	})
	result.TotalAccepted = len(result.Successes)
	result.TotalRejected = len(result.Failures)
	logging.Info().
		Str("tenant_id", principal.TenantID).
		Int("items", len(raws)).
		Int("accepted", result.TotalAccepted).
		Int("rejected", result.TotalRejected).
		Msg("Batch ingestion finished")
	return result, nil
}

// commitChunk commits one chunk transactionally and records the per-item
// outcomes. On a storage failure the whole chunk rolls back and each item
// is reported against its original index.
func (s *Service) commitChunk(ctx context.Context, chunk []batchItem, result *models.BatchResult) {
	ins := make([]*models.Interaction, len(chunk))
	for i, item := range chunk {
		ins[i] = item.interaction
	}

	if err := s.store.InsertInteractions(ctx, ins); err != nil {
		logging.Warn().Err(err).Int("items", len(chunk)).Msg("Batch chunk rolled back")
		for _, item := range chunk {
			metrics.IngestRejected.WithLabelValues("storage").Inc()
			result.Failures = append(result.Failures, models.BatchItemFailure{
				Index:  item.index,
				Reason: "chunk transaction failed",
			})
		}
		return
	}

	for _, item := range chunk {
		metrics.IngestAccepted.WithLabelValues("batch").Inc()
		result.Successes = append(result.Successes, item.interaction.ID)
		s.afterCommit(ctx, item.interaction, models.PriorityBatch)
	}
}
