// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/middleware"
	"github.com/attune-cx/attune/internal/models"
)

// httpStatus maps fault classifications onto HTTP status codes.
func httpStatus(kind faults.Kind) int {
	switch kind {
	case faults.KindValidation:
		return http.StatusBadRequest
	case faults.KindUnauthenticated:
		return http.StatusUnauthorized
	case faults.KindForbidden:
		return http.StatusForbidden
	case faults.KindNotFound:
		return http.StatusNotFound
	case faults.KindThrottled:
		return http.StatusTooManyRequests
	case faults.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes a success envelope.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	resp := &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
	writeJSON(w, status, resp)
}

// RespondError exposes the error envelope writer for middleware that is
// constructed outside this package, such as the auth middleware.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err)
}

// respondError classifies err and writes the error envelope. Throttled
// faults carry a Retry-After header; unclassified errors surface as 500
// with the detail kept out of the response body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	fault := faults.As(err)
	kind := faults.KindOf(err)
	status := httpStatus(kind)

	apiErr := &models.APIError{
		Code:    kind.String(),
		Message: "internal error",
	}
	if fault != nil {
		apiErr.Message = fault.Message
		if len(fault.Fields) > 0 {
			apiErr.Details = fault.Fields
		}
		if fault.RetryAfter > 0 {
			seconds := int(math.Ceil(fault.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}

	l := logging.Ctx(r.Context())
	ev := l.Warn()
	if status >= 500 {
		ev = l.Error()
	}
	ev.Err(err).
		Str("code", apiErr.Code).
		Int("status", status).
		Str("path", sanitizeLogValue(r.URL.Path)).
		Msg("Request failed")

	writeJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
		Error: apiErr,
	})
}

func writeJSON(w http.ResponseWriter, status int, resp *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// sanitizeLogValue strips control characters so attacker-supplied strings
// cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
