// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package models

import (
	"time"

	"github.com/google/uuid"
)

// Known interaction channels. Payloads referencing any other channel fail
// validation before storage is touched.
const (
	ChannelWeb   = "web"
	ChannelEmail = "email"
	ChannelChat  = "chat"
	ChannelPhone = "phone"
	ChannelSMS   = "sms"
)

// ValidChannels contains all accepted channel names.
var ValidChannels = []string{ChannelWeb, ChannelEmail, ChannelChat, ChannelPhone, ChannelSMS}

// Known interaction event types.
const (
	EventPageView  = "page_view"
	EventMessage   = "message"
	EventPurchase  = "purchase"
	EventComplaint = "complaint"
	EventReview    = "review"
	EventSupport   = "support_ticket"
)

// ValidEventTypes contains all accepted event type names.
var ValidEventTypes = []string{
	EventPageView, EventMessage, EventPurchase,
	EventComplaint, EventReview, EventSupport,
}

// IsValidChannel checks a channel name against the known set.
func IsValidChannel(channel string) bool {
	for _, c := range ValidChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// IsValidEventType checks an event type against the known set.
func IsValidEventType(eventType string) bool {
	for _, e := range ValidEventTypes {
		if e == eventType {
			return true
		}
	}
	return false
}

// RawInteraction is the inbound ingestion payload before validation and
// enrichment. Validate tags drive go-playground/validator; channel and event
// type membership is checked by custom validators.
type RawInteraction struct {
	CustomerID string            `json:"customer_id" validate:"required,uuid4|uuid"`
	Timestamp  time.Time         `json:"timestamp" validate:"required"`
	Channel    string            `json:"channel" validate:"required,interaction_channel"`
	EventType  string            `json:"event_type" validate:"required,interaction_event"`
	Content    string            `json:"content" validate:"max=65536"`
	Metadata   map[string]string `json:"metadata" validate:"omitempty,max=64"`
}

// Interaction is a committed customer-interaction event. Immutable once
// committed, except for the asynchronous attachment of the sentiment result
// by the scoring pipeline.
type Interaction struct {
	ID          uuid.UUID         `json:"id"`
	CustomerID  string            `json:"customer_id"`
	TenantID    string            `json:"tenant_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Channel     string            `json:"channel"`
	EventType   string            `json:"event_type"`
	Content     string            `json:"content,omitempty"`
	Sentiment   *SentimentResult  `json:"sentiment,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// CustomerAggregate is the derived, continuously updated summary for one
// customer within one tenant.
//
// Invariants:
//   - InteractionCount equals the number of committed interaction rows for
//     the customer.
//   - LastSeenAt is monotonically non-decreasing.
type CustomerAggregate struct {
	CustomerID       string    `json:"customer_id"`
	TenantID         string    `json:"tenant_id"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	InteractionCount int64     `json:"interaction_count"`
	AvgSentiment     float64   `json:"avg_sentiment"`
	// SentimentSamples counts the interactions folded into AvgSentiment.
	SentimentSamples int64 `json:"sentiment_samples"`
}

// SentimentResult is the scoring service's verdict for one interaction.
type SentimentResult struct {
	Label      string          `json:"sentiment_label"`
	Scores     SentimentScores `json:"scores"`
	Confidence float64         `json:"confidence"`
}

// SentimentScores holds the per-class probabilities from the model.
type SentimentScores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// Sentiment labels produced by the scoring service.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Polarity maps the label onto [-1, 1] for the running aggregate average.
func (s *SentimentResult) Polarity() float64 {
	switch s.Label {
	case SentimentPositive:
		return s.Scores.Positive
	case SentimentNegative:
		return -s.Scores.Negative
	default:
		return 0
	}
}

// InteractionCreatedEvent is the tenant-scoped fan-out payload published
// after a successful ingestion commit.
type InteractionCreatedEvent struct {
	Type          string    `json:"type"`
	InteractionID uuid.UUID `json:"interactionId"`
	CustomerID    string    `json:"customerId"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventTypeInteractionCreated is the fan-out event type string.
const EventTypeInteractionCreated = "interaction.created"

// NewInteractionCreatedEvent builds the fan-out payload for an interaction.
func NewInteractionCreatedEvent(in *Interaction) InteractionCreatedEvent {
	return InteractionCreatedEvent{
		Type:          EventTypeInteractionCreated,
		InteractionID: in.ID,
		CustomerID:    in.CustomerID,
		Timestamp:     in.Timestamp,
	}
}

// BatchItemFailure reports one rejected item of a batch request by its
// position in the original input slice.
type BatchItemFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch ingestion: per-item outcomes plus totals.
type BatchResult struct {
	Successes     []uuid.UUID        `json:"successes"`
	Failures      []BatchItemFailure `json:"failures"`
	TotalAccepted int                `json:"totalAccepted"`
	TotalRejected int                `json:"totalRejected"`
}
