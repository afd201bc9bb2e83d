// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// Scorer produces a sentiment verdict for a piece of text.
type Scorer interface {
	Score(ctx context.Context, text string) (*models.SentimentResult, error)
}

// ResultStore persists scoring outcomes.
type ResultStore interface {
	AttachSentiment(ctx context.Context, interactionID uuid.UUID, res *models.SentimentResult) error
	RecordJobOutcome(ctx context.Context, jobID uuid.UUID, status models.JobStatus, attempts int, lastErr string) error
}

// Worker consumes analysis jobs, scores them, and attaches results.
//
// Failed handlers are retried with exponential backoff; jobs that exhaust
// their retries are routed to the poison topic, where a separate handler
// moves them into the dead-letter inspection set. The batch lane is
// throttled so a large batch cannot starve realtime jobs.
type Worker struct {
	router  *message.Router
	subs    []message.Subscriber
	scorer  Scorer
	store   ResultStore
	dlq     *DeadLetterStore
	retries int
}

// NewWorker wires the job router with its middleware chain and handlers.
func NewWorker(cfg config.DispatchConfig, natsCfg config.NATSConfig, scorer Scorer, store ResultStore, dlq *DeadLetterStore) (*Worker, error) {
	logger := newWatermillLogger()

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	w := &Worker{
		router:  router,
		scorer:  scorer,
		store:   store,
		dlq:     dlq,
		retries: cfg.RetryMaxRetries,
	}

	// Middleware order: recover panics first, then retry transient
	// failures, then route what is left to the poison topic.
	router.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	poisonPub, err := newPublisher(natsCfg, logger)
	if err != nil {
		return nil, err
	}
	poison, err := middleware.PoisonQueue(poisonPub, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("creating poison queue: %w", err)
	}
	router.AddMiddleware(poison)

	realtimeSub, err := newSubscriber(natsCfg, "realtime", logger)
	if err != nil {
		return nil, err
	}
	batchSub, err := newSubscriber(natsCfg, "batch", logger)
	if err != nil {
		return nil, err
	}
	poisonSub, err := newSubscriber(natsCfg, "poison", logger)
	if err != nil {
		return nil, err
	}
	w.subs = []message.Subscriber{realtimeSub, batchSub, poisonSub}

	router.AddConsumerHandler("score-realtime", TopicRealtime, realtimeSub, w.handleJob)

	batchHandler := router.AddConsumerHandler("score-batch", TopicBatch, batchSub, w.handleJob)
	if cfg.BatchThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.BatchThrottlePerSecond, time.Second)
		batchHandler.AddMiddleware(throttle.Middleware)
	}

	router.AddConsumerHandler("dead-letter", cfg.PoisonTopic, poisonSub, w.handlePoisoned)

	return w, nil
}

// Run starts the worker and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running returns a channel that closes once all handlers are consuming.
func (w *Worker) Running() <-chan struct{} {
	return w.router.Running()
}

// Close stops the router and its subscribers.
func (w *Worker) Close() error {
	err := w.router.Close()
	for _, sub := range w.subs {
		if cerr := sub.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// handleJob scores one job and attaches the result. Returning an error
// triggers the retry middleware; exhaustion routes the message to the
// poison topic.
func (w *Worker) handleJob(msg *message.Message) error {
	var job models.AnalysisJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		// An undecodable job cannot succeed on retry. Let it fall through
		// the retries into the dead-letter set for inspection.
		return fmt.Errorf("decoding job: %w", err)
	}

	ctx := msg.Context()
	result, err := w.scorer.Score(ctx, job.Text)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues(string(job.Priority), "failure").Inc()
		if faults.KindOf(err) == faults.KindValidation {
			// The scoring service rejected the payload. Retrying cannot
			// change that, so park the job for inspection immediately.
			return w.deadLetter(ctx, &job, 1, err.Error())
		}
		return fmt.Errorf("scoring interaction %s: %w", job.InteractionID, err)
	}

	if err := w.store.AttachSentiment(ctx, job.InteractionID, result); err != nil {
		metrics.JobsProcessed.WithLabelValues(string(job.Priority), "failure").Inc()
		return fmt.Errorf("attaching sentiment: %w", err)
	}

	metrics.JobsProcessed.WithLabelValues(string(job.Priority), "success").Inc()
	if err := w.store.RecordJobOutcome(ctx, job.ID, models.JobSucceeded, job.Attempts+1, ""); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Job audit update failed")
	}
	logging.Debug().
		Str("job_id", job.ID.String()).
		Str("interaction_id", job.InteractionID.String()).
		Str("label", result.Label).
		Msg("Analysis job completed")
	return nil
}

// handlePoisoned moves an exhausted job into the dead-letter inspection
// set. This handler must not fail on malformed payloads, or the poison
// topic would poison itself.
func (w *Worker) handlePoisoned(msg *message.Message) error {
	reason := msg.Metadata.Get(middleware.ReasonForPoisonedKey)

	var job models.AnalysisJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		logging.Error().Err(err).
			Str("message_uuid", msg.UUID).
			Str("reason", reason).
			Msg("Undecodable poisoned job dropped")
		return nil
	}

	return w.deadLetter(msg.Context(), &job, w.retries+1, reason)
}

// deadLetter parks a job in the inspection set and records its terminal
// audit outcome. An error keeps the message redelivering until the entry
// is durably stored.
func (w *Worker) deadLetter(ctx context.Context, job *models.AnalysisJob, attempts int, reason string) error {
	entry := &models.DeadLetterEntry{
		JobID:         job.ID,
		InteractionID: job.InteractionID,
		TenantID:      job.TenantID,
		Priority:      string(job.Priority),
		Attempts:      attempts,
		LastError:     reason,
		FirstFailedAt: job.EnqueuedAt,
		DeadAt:        time.Now().UTC(),
	}
	if err := w.dlq.Add(entry); err != nil {
		return fmt.Errorf("recording dead letter: %w", err)
	}

	if err := w.store.RecordJobOutcome(ctx, job.ID, models.JobDead, attempts, reason); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Job audit update failed")
	}
	logging.Error().
		Str("job_id", job.ID.String()).
		Str("interaction_id", job.InteractionID.String()).
		Str("reason", reason).
		Msg("Analysis job dead-lettered")
	return nil
}
