// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package authz implements authorization checks over verified principals.
//
// Checks are small composable predicates evaluated after authentication.
// Role checks use the ordered role ladder (admin ⊇ analyst ⊇ viewer);
// permission checks use explicit capability membership. Tenant isolation is
// absolute: no role, including admin, crosses tenant boundaries.
package authz

import (
	"fmt"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/metrics"
	"github.com/attune-cx/attune/internal/models"
)

// Check is an authorization predicate over a verified principal.
// A nil return admits the request.
type Check func(p *models.Principal) error

// RequireRole admits principals whose role is at least min.
func RequireRole(min models.Role) Check {
	return func(p *models.Principal) error {
		if !p.Role.AtLeast(min) {
			metrics.AuthFailures.WithLabelValues("forbidden").Inc()
			return faults.Forbidden(fmt.Sprintf("requires role %s", min))
		}
		return nil
	}
}

// RequireAnyPermission admits principals holding at least one of the
// permissions. An empty list admits everyone.
func RequireAnyPermission(perms ...models.Permission) Check {
	return func(p *models.Principal) error {
		if !p.Permissions.ContainsAny(perms...) {
			metrics.AuthFailures.WithLabelValues("forbidden").Inc()
			return faults.Forbidden("insufficient permissions")
		}
		return nil
	}
}

// RequireAllPermissions admits principals holding every one of the
// permissions.
func RequireAllPermissions(perms ...models.Permission) Check {
	return func(p *models.Principal) error {
		if !p.Permissions.ContainsAll(perms...) {
			metrics.AuthFailures.WithLabelValues("forbidden").Inc()
			return faults.Forbidden("insufficient permissions")
		}
		return nil
	}
}

// All combines checks; every check must admit.
func All(checks ...Check) Check {
	return func(p *models.Principal) error {
		for _, check := range checks {
			if err := check(p); err != nil {
				return err
			}
		}
		return nil
	}
}

// CheckTenant rejects access to another tenant's resources. The denial is
// indistinguishable from the resource not existing, so tenant probing leaks
// nothing.
func CheckTenant(p *models.Principal, tenantID string) error {
	if p.TenantID != tenantID {
		metrics.AuthFailures.WithLabelValues("forbidden").Inc()
		return faults.NotFound("resource not found")
	}
	return nil
}
