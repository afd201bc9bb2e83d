// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package api provides the HTTP surface: routing, handlers, and the
// response envelope.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/authz"
	"github.com/attune-cx/attune/internal/database"
	"github.com/attune-cx/attune/internal/dispatch"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/ingest"
	"github.com/attune-cx/attune/internal/models"
	"github.com/attune-cx/attune/internal/validation"
)

// maxBodyBytes caps request bodies; interaction content alone may reach
// 64 KiB, batches proportionally more.
const maxBodyBytes = 32 << 20

// Handlers holds the dependencies of all HTTP handlers.
type Handlers struct {
	ingest        *ingest.Service
	authenticator *auth.Authenticator
	store         *database.Store
	deadLetters   *dispatch.DeadLetterStore
	tokenTTL      time.Duration
}

// NewHandlers builds the handler set.
func NewHandlers(ingestSvc *ingest.Service, authenticator *auth.Authenticator, store *database.Store, deadLetters *dispatch.DeadLetterStore, tokenTTL time.Duration) *Handlers {
	return &Handlers{
		ingest:        ingestSvc,
		authenticator: authenticator,
		store:         store,
		deadLetters:   deadLetters,
		tokenTTL:      tokenTTL,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a bearer token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, r, faults.Validation("invalid login payload", verr.FieldErrors()...))
		return
	}

	token, _, err := h.authenticator.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.tokenTTL),
	})
}

// CreateInteraction ingests a single interaction for the caller's tenant.
func (h *Handlers) CreateInteraction(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, faults.Unauthenticated(errors.New("no principal on request")))
		return
	}

	var raw models.RawInteraction
	if err := decodeBody(r, &raw); err != nil {
		respondError(w, r, err)
		return
	}

	in, err := h.ingest.Ingest(r.Context(), principal, &raw)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, models.IngestResponse{
		InteractionID: in.ID.String(),
	})
}

type batchRequest struct {
	Interactions []models.RawInteraction `json:"interactions"`
}

// CreateInteractionsBatch ingests a batch with per-item outcomes.
// Responds 201 even when some items failed; the body carries the stable
// per-item failure indexes.
func (h *Handlers) CreateInteractionsBatch(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, faults.Unauthenticated(errors.New("no principal on request")))
		return
	}

	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.ingest.IngestBatch(r.Context(), principal, req.Interactions)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, result)
}

// GetCustomerAggregate returns the derived summary for one customer.
func (h *Handlers) GetCustomerAggregate(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, faults.Unauthenticated(errors.New("no principal on request")))
		return
	}

	customerID := chi.URLParam(r, "customerID")
	if _, err := uuid.Parse(customerID); err != nil {
		respondError(w, r, faults.Validation("customer id must be a UUID"))
		return
	}

	agg, err := h.store.Aggregate(r.Context(), principal.TenantID, customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, agg)
}

// GetInteraction returns one committed interaction.
func (h *Handlers) GetInteraction(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, faults.Unauthenticated(errors.New("no principal on request")))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "interactionID"))
	if err != nil {
		respondError(w, r, faults.Validation("interaction id must be a UUID"))
		return
	}

	in, err := h.store.GetInteraction(r.Context(), principal.TenantID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, in)
}

type createCustomerRequest struct {
	ID    string `json:"id" validate:"required,uuid4|uuid"`
	Name  string `json:"name" validate:"required,max=256"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CreateCustomer registers a customer in the caller's tenant.
func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, faults.Unauthenticated(errors.New("no principal on request")))
		return
	}

	var req createCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, r, faults.Validation("invalid customer payload", verr.FieldErrors()...))
		return
	}

	customer := &models.Customer{
		ID:        req.ID,
		TenantID:  principal.TenantID,
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateCustomer(r.Context(), customer); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, customer)
}

// ListDeadLetters returns the dead-letter inspection set (admin only).
func (h *Handlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 100
	entries, err := h.deadLetters.List(limit)
	if err != nil {
		respondError(w, r, faults.Transient("listing dead letters", err))
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	visible := make([]*models.DeadLetterEntry, 0, len(entries))
	for _, entry := range entries {
		if err := authz.CheckTenant(principal, entry.TenantID); err == nil {
			visible = append(visible, entry)
		}
	}
	respondJSON(w, r, http.StatusOK, visible)
}

// ResolveDeadLetter removes one dead-letter entry after inspection.
func (h *Handlers) ResolveDeadLetter(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, r, faults.Validation("job id must be a UUID"))
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	entry, err := h.deadLetters.Get(jobID)
	if err != nil {
		if errors.Is(err, dispatch.ErrEntryNotFound) {
			respondError(w, r, faults.NotFound("dead-letter entry not found"))
			return
		}
		respondError(w, r, faults.Transient("reading dead letter", err))
		return
	}
	if err := authz.CheckTenant(principal, entry.TenantID); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.deadLetters.Delete(jobID); err != nil {
		respondError(w, r, faults.Transient("deleting dead letter", err))
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"resolved": jobID.String()})
}

// decodeBody decodes a JSON request body with a size cap.
func decodeBody(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return faults.Validation("malformed JSON body")
	}
	return nil
}
