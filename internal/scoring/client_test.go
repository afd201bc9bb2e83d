// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package scoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/faults"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ScoringConfig{
		URL:                srv.URL,
		Timeout:            5 * time.Second,
		BreakerMaxFailures: 3,
		BreakerOpenFor:     30 * time.Second,
	})
}

func TestScoreSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/analyze" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sentiment": "positive",
			"confidence": 0.91,
			"scores": {"positive": 0.91, "negative": 0.03, "neutral": 0.06}
		}`))
	}))

	result, err := client.Score(context.Background(), "the onboarding flow was great")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Label != "positive" {
		t.Errorf("Label = %s, want positive", result.Label)
	}
	if result.Confidence != 0.91 {
		t.Errorf("Confidence = %v", result.Confidence)
	}
	if result.Scores.Negative != 0.03 {
		t.Errorf("Scores.Negative = %v", result.Scores.Negative)
	}
}

func TestScoreServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Score(context.Background(), "text")
	if !faults.IsKind(err, faults.KindTransient) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestScoreClientErrorIsValidation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	_, err := client.Score(context.Background(), "")
	if !faults.IsKind(err, faults.KindValidation) {
		t.Errorf("err = %v, want validation so retries are not wasted", err)
	}
}

func TestScoreUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(config.ScoringConfig{
		URL:                srv.URL,
		Timeout:            time.Second,
		BreakerMaxFailures: 3,
		BreakerOpenFor:     30 * time.Second,
	})

	_, err := client.Score(context.Background(), "text")
	if !faults.IsKind(err, faults.KindTransient) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestScoreBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 3; i++ {
		if _, err := client.Score(context.Background(), "text"); err == nil {
			t.Fatalf("request %d unexpectedly succeeded", i)
		}
	}

	_, err := client.Score(context.Background(), "text")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want open breaker", err)
	}
}

func TestScoreMalformedResponseIsTransient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{truncated"))
	}))

	_, err := client.Score(context.Background(), "text")
	if !faults.IsKind(err, faults.KindTransient) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestHealthy(t *testing.T) {
	healthy := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	if err := healthy.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy: %v", err)
	}

	sick := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	if err := sick.Healthy(context.Background()); err == nil {
		t.Error("Healthy on unhealthy service returned nil")
	}
}
