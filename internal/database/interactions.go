// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

const insertInteractionSQL = `
	INSERT INTO interactions (
		id, customer_id, tenant_id, occurred_at, channel, event_type,
		content, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// upsertAggregateSQL bumps the customer aggregate in the same transaction
// as the interaction insert. last_seen_at never moves backwards even when
// interactions arrive out of order.
const upsertAggregateSQL = `
	INSERT INTO customer_aggregates (
		customer_id, tenant_id, interaction_count, last_seen_at,
		avg_sentiment, sentiment_samples
	) VALUES (?, ?, 1, ?, 0, 0)
	ON CONFLICT (tenant_id, customer_id) DO UPDATE SET
		interaction_count = customer_aggregates.interaction_count + 1,
		last_seen_at = greatest(customer_aggregates.last_seen_at, excluded.last_seen_at)`

// InsertInteraction commits one interaction and its aggregate update
// atomically. A customer id that does not exist within the tenant fails the
// whole transaction with a not-found fault; no partial state is left behind.
func (s *Store) InsertInteraction(ctx context.Context, in *models.Interaction) error {
	return s.withWriteTx(ctx, "insert_interaction", func(tx *sql.Tx) error {
		return s.insertInteractionTx(ctx, tx, in)
	})
}

// InsertInteractions commits a chunk of interactions in a single
// transaction. If any insert fails the whole chunk rolls back.
func (s *Store) InsertInteractions(ctx context.Context, ins []*models.Interaction) error {
	if len(ins) == 0 {
		return nil
	}
	return s.withWriteTx(ctx, "insert_interaction_chunk", func(tx *sql.Tx) error {
		for _, in := range ins {
			if err := s.insertInteractionTx(ctx, tx, in); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertInteractionTx(ctx context.Context, tx *sql.Tx, in *models.Interaction) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE tenant_id = ? AND id = ?)`,
		in.TenantID, in.CustomerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking customer: %w", err)
	}
	if !exists {
		return faults.NotFound(fmt.Sprintf("customer %s not found", in.CustomerID))
	}

	metadata, err := encodeMetadata(in.Metadata)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, insertInteractionSQL,
		in.ID.String(), in.CustomerID, in.TenantID,
		in.Timestamp.UTC(), in.Channel, in.EventType,
		in.Content, metadata, in.ProcessedAt.UTC(),
	); err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertAggregateSQL,
		in.CustomerID, in.TenantID, in.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("updating customer aggregate: %w", err)
	}
	return nil
}

// AttachSentiment records the scoring verdict for an interaction and folds
// its polarity into the customer's running average. The update is
// idempotent: a redelivered job finds the sentiment already set and leaves
// both the row and the aggregate untouched.
func (s *Store) AttachSentiment(ctx context.Context, interactionID uuid.UUID, res *models.SentimentResult) error {
	return s.withWriteTx(ctx, "attach_sentiment", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE interactions SET
				sentiment_label = ?, sentiment_positive = ?, sentiment_negative = ?,
				sentiment_neutral = ?, sentiment_confidence = ?, scored_at = ?
			WHERE id = ? AND sentiment_label IS NULL`,
			res.Label, res.Scores.Positive, res.Scores.Negative,
			res.Scores.Neutral, res.Confidence, time.Now().UTC(),
			interactionID.String(),
		)
		if err != nil {
			return fmt.Errorf("attaching sentiment: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if affected == 0 {
			// Already scored, or the interaction is gone. Either way the
			// aggregate must not be folded twice.
			return nil
		}

		var customerID, tenantID string
		err = tx.QueryRowContext(ctx,
			`SELECT customer_id, tenant_id FROM interactions WHERE id = ?`,
			interactionID.String(),
		).Scan(&customerID, &tenantID)
		if err != nil {
			return fmt.Errorf("resolving interaction owner: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE customer_aggregates SET
				avg_sentiment = (avg_sentiment * sentiment_samples + ?) / (sentiment_samples + 1),
				sentiment_samples = sentiment_samples + 1
			WHERE tenant_id = ? AND customer_id = ?`,
			res.Polarity(), tenantID, customerID,
		); err != nil {
			return fmt.Errorf("folding sentiment into aggregate: %w", err)
		}
		return nil
	})
}

// Aggregate returns the derived summary for a customer within a tenant.
func (s *Store) Aggregate(ctx context.Context, tenantID, customerID string) (*models.CustomerAggregate, error) {
	start := time.Now()
	agg := &models.CustomerAggregate{CustomerID: customerID, TenantID: tenantID}
	err := s.db.QueryRowContext(ctx, `
		SELECT interaction_count, last_seen_at, avg_sentiment, sentiment_samples
		FROM customer_aggregates WHERE tenant_id = ? AND customer_id = ?`,
		tenantID, customerID,
	).Scan(&agg.InteractionCount, &agg.LastSeenAt, &agg.AvgSentiment, &agg.SentimentSamples)
	recordQuery("get_aggregate", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		// A known customer with no interactions yet still has an aggregate
		// view: all zeros.
		exists, cerr := s.CustomerExists(ctx, tenantID, customerID)
		if cerr != nil {
			return nil, cerr
		}
		if !exists {
			return nil, faults.NotFound(fmt.Sprintf("customer %s not found", customerID))
		}
		return agg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying aggregate: %w", err)
	}
	agg.LastSeenAt = agg.LastSeenAt.UTC()
	return agg, nil
}

// CustomerExists reports whether the customer exists within the tenant.
// Used by the batch coordinator to pre-screen items before chunking.
func (s *Store) CustomerExists(ctx context.Context, tenantID, customerID string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE tenant_id = ? AND id = ?)`,
		tenantID, customerID,
	).Scan(&exists)
	recordQuery("customer_exists", start, err)
	if err != nil {
		return false, fmt.Errorf("checking customer: %w", err)
	}
	return exists, nil
}

// CreateCustomer registers a customer within a tenant.
func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	return s.withWriteTx(ctx, "create_customer", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO customers (id, tenant_id, name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.TenantID, c.Name, c.Email, c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting customer: %w", err)
		}
		return nil
	})
}

// GetInteraction fetches one committed interaction by id within a tenant.
func (s *Store) GetInteraction(ctx context.Context, tenantID string, id uuid.UUID) (*models.Interaction, error) {
	start := time.Now()
	in := &models.Interaction{ID: id, TenantID: tenantID}
	var (
		metadata   sql.NullString
		label      sql.NullString
		positive   sql.NullFloat64
		negative   sql.NullFloat64
		neutral    sql.NullFloat64
		confidence sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, occurred_at, channel, event_type, content, metadata,
			sentiment_label, sentiment_positive, sentiment_negative,
			sentiment_neutral, sentiment_confidence, created_at
		FROM interactions WHERE tenant_id = ? AND id = ?`,
		tenantID, id.String(),
	).Scan(&in.CustomerID, &in.Timestamp, &in.Channel, &in.EventType,
		&in.Content, &metadata, &label, &positive, &negative, &neutral,
		&confidence, &in.ProcessedAt)
	recordQuery("get_interaction", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound(fmt.Sprintf("interaction %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying interaction: %w", err)
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &in.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	if label.Valid {
		in.Sentiment = &models.SentimentResult{
			Label: label.String,
			Scores: models.SentimentScores{
				Positive: positive.Float64,
				Negative: negative.Float64,
				Neutral:  neutral.Float64,
			},
			Confidence: confidence.Float64,
		}
	}
	in.Timestamp = in.Timestamp.UTC()
	in.ProcessedAt = in.ProcessedAt.UTC()
	return in, nil
}

func encodeMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return string(raw), nil
}

// recordQuery reports query metrics; ErrNoRows is an outcome, not an error.
func recordQuery(op string, start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	metrics.RecordDBQuery(op, time.Since(start), err)
}
