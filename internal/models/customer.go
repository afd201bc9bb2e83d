// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package models

import "time"

// Customer is a tenant-scoped customer record. Interactions may only be
// ingested for customers that already exist within the caller's tenant.
type Customer struct {
	ID        string    `json:"id" validate:"required,uuid4|uuid"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name" validate:"required,max=256"`
	Email     string    `json:"email" validate:"omitempty,email"`
	CreatedAt time.Time `json:"created_at"`
}
