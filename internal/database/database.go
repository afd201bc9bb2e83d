// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package database implements the persistent store for interactions,
// customer aggregates, and principals on top of embedded DuckDB.
//
// DuckDB uses optimistic concurrency control: two transactions that
// touch the same row abort rather than block. Every interaction write
// also updates the customer's aggregate row, so concurrent writes to
// the same customer would conflict constantly. The store therefore
// serializes write transactions behind a mutex; reads go straight to
// the pool.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
)

// Store wraps the DuckDB connection pool.
type Store struct {
	db *sql.DB

	// writeMu serializes write transactions. See the package comment.
	writeMu sync.Mutex
}

// New opens (or creates) the database at cfg.Path and applies the schema.
func New(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.MaxMemory != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%s'", cfg.MaxMemory)); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting memory limit: %w", err)
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting thread count: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database ready")
	return s, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id         VARCHAR NOT NULL,
			tenant_id  VARCHAR NOT NULL,
			name       VARCHAR NOT NULL,
			email      VARCHAR,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id                   VARCHAR PRIMARY KEY,
			customer_id          VARCHAR NOT NULL,
			tenant_id            VARCHAR NOT NULL,
			occurred_at          TIMESTAMP NOT NULL,
			channel              VARCHAR NOT NULL,
			event_type           VARCHAR NOT NULL,
			content              VARCHAR NOT NULL,
			metadata             VARCHAR,
			sentiment_label      VARCHAR,
			sentiment_positive   DOUBLE,
			sentiment_negative   DOUBLE,
			sentiment_neutral    DOUBLE,
			sentiment_confidence DOUBLE,
			scored_at            TIMESTAMP,
			created_at           TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_customer
			ON interactions (tenant_id, customer_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS customer_aggregates (
			customer_id       VARCHAR NOT NULL,
			tenant_id         VARCHAR NOT NULL,
			interaction_count BIGINT NOT NULL DEFAULT 0,
			last_seen_at      TIMESTAMP NOT NULL,
			avg_sentiment     DOUBLE NOT NULL DEFAULT 0,
			sentiment_samples BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, customer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS principals (
			id            VARCHAR PRIMARY KEY,
			email         VARCHAR NOT NULL UNIQUE,
			password_hash VARCHAR NOT NULL,
			tenant_id     VARCHAR NOT NULL,
			role          VARCHAR NOT NULL,
			permissions   VARCHAR NOT NULL DEFAULT '[]',
			status        VARCHAR NOT NULL DEFAULT 'active',
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_jobs (
			job_id         VARCHAR PRIMARY KEY,
			interaction_id VARCHAR NOT NULL,
			tenant_id      VARCHAR NOT NULL,
			priority       VARCHAR NOT NULL,
			status         VARCHAR NOT NULL,
			attempts       INTEGER NOT NULL DEFAULT 0,
			last_error     VARCHAR,
			enqueued_at    TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// withWriteTx runs fn inside a serialized write transaction, committing on
// nil and rolling back otherwise.
func (s *Store) withWriteTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		metrics.RecordDBQuery(op, time.Since(start), err)
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Warn().Err(rbErr).Str("op", op).Msg("Transaction rollback failed")
		}
		metrics.RecordDBQuery(op, time.Since(start), err)
		return err
	}

	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		metrics.RecordDBQuery(op, time.Since(start), err)
		return err
	}
	metrics.RecordDBQuery(op, time.Since(start), nil)
	return nil
}
