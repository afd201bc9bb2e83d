// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package testinfra provides container-backed infrastructure for
// integration tests.
//
// It uses testcontainers-go to run the real sentiment analysis service
// and a NATS JetStream broker, so the dispatch and scoring paths can be
// exercised against live dependencies. All helpers are behind the
// "integration" build tag and skip cleanly when Docker is unavailable:
//
//	go test -tags integration ./...
package testinfra
