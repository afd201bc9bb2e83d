// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package dispatch implements the asynchronous analysis-job pipeline:
// a JetStream publisher on the ingestion side and a watermill worker that
// consumes jobs, calls the scoring service, and attaches results.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// JobAuditor records the durable audit trail for dispatched jobs.
type JobAuditor interface {
	RecordJobQueued(ctx context.Context, job *models.AnalysisJob) error
}

// Dispatcher publishes analysis jobs onto the queue. Publishing happens
// strictly outside the ingestion transaction; a dispatch failure never
// rolls back a committed interaction.
type Dispatcher struct {
	pub     message.Publisher
	auditor JobAuditor
	breaker *gobreaker.CircuitBreaker[any]

	mu     sync.Mutex
	closed bool
}

// NewDispatcher builds the job publisher with circuit-breaker protection.
func NewDispatcher(cfg config.NATSConfig, auditor JobAuditor) (*Dispatcher, error) {
	logger := newWatermillLogger()
	pub, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "job-dispatch",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, to)
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Dispatcher{pub: pub, auditor: auditor, breaker: breaker}, nil
}

// Enqueue publishes one job to its priority lane. The job id doubles as
// the Nats-Msg-Id, so stream-level deduplication absorbs ambiguous
// publish retries.
func (d *Dispatcher) Enqueue(ctx context.Context, job *models.AnalysisJob) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is closed")
	}
	d.mu.Unlock()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	msg := message.NewMessage(job.ID.String(), payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, job.ID.String())

	topic := TopicRealtime
	if job.Priority == models.PriorityBatch {
		topic = TopicBatch
	}

	if _, err := d.breaker.Execute(func() (any, error) {
		return nil, d.pub.Publish(topic, msg)
	}); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}
	metrics.JobsEnqueued.WithLabelValues(string(job.Priority)).Inc()

	// Audit trail only; the queue is authoritative.
	if err := d.auditor.RecordJobQueued(ctx, job); err != nil {
		logging.Warn().Err(err).
			Str("job_id", job.ID.String()).
			Msg("Job audit record failed")
	}
	return nil
}

// Close shuts the underlying publisher down.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.pub.Close()
}
