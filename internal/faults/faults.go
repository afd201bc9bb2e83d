// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package faults defines the error classification shared by every layer of
// the service. Each classification maps to exactly one HTTP status class at
// the API boundary and carries a stable machine-readable code.
//
// Classification rules:
//   - Validation errors never touch storage and are never retried.
//   - Authentication failures are deliberately indistinguishable from an
//     unknown identity so callers cannot enumerate accounts.
//   - Transient failures on the transactional write are NOT retried silently
//     (a retried write risks duplication); the caller must resubmit.
//   - Transient failures on job dispatch and fan-out are retried internally.
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failure classification.
type Kind int

const (
	// KindUnknown is an unclassified internal failure (500-class).
	KindUnknown Kind = iota

	// KindValidation is malformed or missing input (400-class).
	KindValidation

	// KindUnauthenticated is a missing, invalid, or expired credential, or an
	// inactive principal (401-class).
	KindUnauthenticated

	// KindForbidden is an authenticated principal with insufficient
	// capability, including tenant mismatches (403-class).
	KindForbidden

	// KindNotFound is a referenced entity absent within tenant scope (404-class).
	KindNotFound

	// KindThrottled is a rate ceiling exceeded (429-class).
	KindThrottled

	// KindTransient is an unreachable storage or coordination dependency
	// (503-class where not retryable at the calling layer).
	KindTransient
)

// String returns the stable classification code for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindThrottled:
		return "RATE_LIMITED"
	case KindTransient:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// FieldError describes a single invalid field in a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Fault is a classified error. It wraps an optional cause and carries the
// user-visible message; the cause is for logs only and never leaks to callers.
type Fault struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	// RetryAfter is set for KindThrottled and surfaced as a Retry-After hint.
	RetryAfter time.Duration
	cause      error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (f *Fault) Unwrap() error { return f.cause }

// New creates a classified fault with a user-visible message.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Wrap classifies an underlying error. The message is user-visible; err is not.
func Wrap(kind Kind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, cause: err}
}

// Validation creates a validation fault with field-level details.
func Validation(message string, fields ...FieldError) *Fault {
	return &Fault{Kind: KindValidation, Message: message, Fields: fields}
}

// Unauthenticated creates an authentication fault. The same message is used
// for every authentication failure mode on purpose.
func Unauthenticated(err error) *Fault {
	return &Fault{Kind: KindUnauthenticated, Message: "authentication required", cause: err}
}

// Forbidden creates an authorization fault.
func Forbidden(message string) *Fault {
	return &Fault{Kind: KindForbidden, Message: message}
}

// NotFound creates a not-found fault scoped to the caller's tenant view.
func NotFound(message string) *Fault {
	return &Fault{Kind: KindNotFound, Message: message}
}

// Throttled creates a rate-limit fault with a retry-after hint.
func Throttled(retryAfter time.Duration) *Fault {
	return &Fault{
		Kind:       KindThrottled,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Transient classifies an infrastructure failure.
func Transient(message string, err error) *Fault {
	return &Fault{Kind: KindTransient, Message: message, cause: err}
}

// KindOf extracts the classification from an error chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// As extracts a Fault from an error chain, or nil when unclassified.
func As(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return nil
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
