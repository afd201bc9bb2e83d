// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package services

import (
	"context"
	"fmt"
)

// JobWorker matches dispatch.Worker's run loop.
type JobWorker interface {
	Run(ctx context.Context) error
}

// JobWorkerService supervises the analysis job consumer. A crashed
// consumer is restarted by suture; unacked messages are redelivered by
// the queue, so restarts never lose jobs.
type JobWorkerService struct {
	worker JobWorker
}

// NewJobWorkerService wraps worker for supervision.
func NewJobWorkerService(worker JobWorker) *JobWorkerService {
	return &JobWorkerService{worker: worker}
}

// Serve implements suture.Service.
func (j *JobWorkerService) Serve(ctx context.Context) error {
	if err := j.worker.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("job worker stopped: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in supervision logs.
func (j *JobWorkerService) String() string { return "job-worker" }
