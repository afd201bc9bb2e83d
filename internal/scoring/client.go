// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package scoring implements the HTTP client for the external sentiment
// service, with circuit-breaker protection so a down model server fails
// fast instead of tying up worker goroutines.
package scoring

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// analyzeRequest is the scoring service's request body.
type analyzeRequest struct {
	Text string `json:"text"`
}

// analyzeResponse mirrors the scoring service's verdict payload.
type analyzeResponse struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Scores     struct {
		Positive float64 `json:"positive"`
		Negative float64 `json:"negative"`
		Neutral  float64 `json:"neutral"`
	} `json:"scores"`
}

// Client calls the sentiment service.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*models.SentimentResult]
}

// NewClient builds the scoring client from configuration.
func NewClient(cfg config.ScoringConfig) *Client {
	breaker := gobreaker.NewCircuitBreaker[*models.SentimentResult](gobreaker.Settings{
		Name:    "scoring",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
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

	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Score sends text to the sentiment service and returns the verdict.
//
// Network failures and 5xx responses are transient faults; the job
// pipeline retries them. A 4xx response means this text will never score
// and is returned as a validation fault so retries are not wasted on it.
func (c *Client) Score(ctx context.Context, text string) (*models.SentimentResult, error) {
	return c.breaker.Execute(func() (*models.SentimentResult, error) {
		return c.score(ctx, text)
	})
}

func (c *Client) score(ctx context.Context, text string) (*models.SentimentResult, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.Transient("calling scoring service", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, faults.Transient(fmt.Sprintf("scoring service returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, faults.Validation(fmt.Sprintf("scoring service rejected text with %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, faults.Transient("reading scoring response", err)
	}

	var verdict analyzeResponse
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, faults.Transient("decoding scoring response", err)
	}

	return &models.SentimentResult{
		Label:      verdict.Sentiment,
		Confidence: verdict.Confidence,
		Scores: models.SentimentScores{
			Positive: verdict.Scores.Positive,
			Negative: verdict.Scores.Negative,
			Neutral:  verdict.Scores.Neutral,
		},
	}, nil
}

// Healthy probes the scoring service's health endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scoring service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
