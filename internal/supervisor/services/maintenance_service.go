// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package services

import (
	"context"
	"time"

	"github.com/attune-cx/attune/internal/logging"
)

// Collector is a periodic housekeeping task, such as the dead-letter
// store's value-log garbage collection.
type Collector interface {
	RunGC() error
}

// MaintenanceService runs a Collector on a fixed interval in the data
// layer. Collection failures are logged and retried on the next tick
// rather than crashing the service.
type MaintenanceService struct {
	name      string
	collector Collector
	interval  time.Duration
}

// NewMaintenanceService wraps collector for supervision. name appears in
// supervision logs.
func NewMaintenanceService(name string, collector Collector, interval time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MaintenanceService{name: name, collector: collector, interval: interval}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.collector.RunGC(); err != nil {
				logging.Warn().Err(err).Str("service", m.name).Msg("maintenance pass failed")
			}
		}
	}
}

// String identifies the service in supervision logs.
func (m *MaintenanceService) String() string { return m.name }
