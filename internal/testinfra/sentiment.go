// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultSentimentImage is the sentiment analysis service image.
	DefaultSentimentImage = "ghcr.io/attune-cx/sentiment-service:latest"

	// DefaultSentimentPort is the service's HTTP port.
	DefaultSentimentPort = "8500"
)

// SentimentContainer is a running sentiment analysis service.
type SentimentContainer struct {
	testcontainers.Container
	URL string
}

// SentimentOption configures the sentiment container.
type SentimentOption func(*sentimentConfig)

type sentimentConfig struct {
	image        string
	startTimeout time.Duration
}

// WithSentimentImage overrides the service image.
func WithSentimentImage(image string) SentimentOption {
	return func(c *sentimentConfig) { c.image = image }
}

// WithSentimentStartTimeout overrides the readiness timeout. Model
// loading dominates startup, so slow runners may need more than the
// default 120s.
func WithSentimentStartTimeout(timeout time.Duration) SentimentOption {
	return func(c *sentimentConfig) { c.startTimeout = timeout }
}

// NewSentimentContainer starts the sentiment service and waits for its
// health endpoint to report ready.
func NewSentimentContainer(ctx context.Context, opts ...SentimentOption) (*SentimentContainer, error) {
	cfg := &sentimentConfig{
		image:        DefaultSentimentImage,
		startTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultSentimentPort + "/tcp"},
		WaitingFor: wait.ForHTTP("/health").
			WithPort(DefaultSentimentPort + "/tcp").
			WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting sentiment container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving container host: %w", err)
	}
	port, err := container.MappedPort(ctx, DefaultSentimentPort+"/tcp")
	if err != nil {
		return nil, fmt.Errorf("resolving mapped port: %w", err)
	}

	return &SentimentContainer{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, port.Port()),
	}, nil
}

// NewNATSContainer starts a NATS server with JetStream enabled for
// queue integration tests.
func NewNATSContainer(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "nats:2.12-alpine",
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          []string{"--jetstream"},
		WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("starting NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("resolving container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("resolving mapped port: %w", err)
	}

	return container, fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}
