// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/models"
)

func analystPrincipal() *models.Principal {
	return &models.Principal{
		ID:          "p-1",
		Email:       "analyst@example.com",
		Role:        models.RoleAnalyst,
		Permissions: models.NewPermissionSet(models.PermInteractionsWrite, models.PermInteractionsRead),
		TenantID:    "tenant-a",
		Status:      models.StatusActive,
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		role models.Role
		min  models.Role
		deny bool
	}{
		{name: "exact role", role: models.RoleAnalyst, min: models.RoleAnalyst},
		{name: "higher role", role: models.RoleAdmin, min: models.RoleViewer},
		{name: "lower role denied", role: models.RoleViewer, min: models.RoleAnalyst, deny: true},
		{name: "analyst is not admin", role: models.RoleAnalyst, min: models.RoleAdmin, deny: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := analystPrincipal()
			p.Role = tt.role
			err := RequireRole(tt.min)(p)
			if tt.deny {
				if !faults.IsKind(err, faults.KindForbidden) {
					t.Errorf("err = %v, want forbidden", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected denial: %v", err)
			}
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	p := analystPrincipal()

	if err := RequireAnyPermission(models.PermInteractionsRead, models.PermUsersManage)(p); err != nil {
		t.Errorf("one held permission should admit: %v", err)
	}
	if err := RequireAnyPermission()(p); err != nil {
		t.Errorf("empty list should admit: %v", err)
	}
	err := RequireAnyPermission(models.PermUsersManage)(p)
	if !faults.IsKind(err, faults.KindForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestRequireAllPermissions(t *testing.T) {
	p := analystPrincipal()

	if err := RequireAllPermissions(models.PermInteractionsWrite, models.PermInteractionsRead)(p); err != nil {
		t.Errorf("all held permissions should admit: %v", err)
	}
	err := RequireAllPermissions(models.PermInteractionsRead, models.PermAnalyticsRead)(p)
	if !faults.IsKind(err, faults.KindForbidden) {
		t.Errorf("partial hold should deny, got %v", err)
	}
}

func TestAll(t *testing.T) {
	p := analystPrincipal()

	combined := All(
		RequireRole(models.RoleAnalyst),
		RequireAllPermissions(models.PermInteractionsWrite),
	)
	if err := combined(p); err != nil {
		t.Errorf("all checks pass, got %v", err)
	}

	failing := All(
		RequireRole(models.RoleViewer),
		RequireAllPermissions(models.PermUsersManage),
	)
	if err := failing(p); !faults.IsKind(err, faults.KindForbidden) {
		t.Errorf("err = %v, want forbidden from second check", err)
	}

	if err := All()(p); err != nil {
		t.Errorf("empty combinator should admit, got %v", err)
	}
}

func TestCheckTenantMasksAsNotFound(t *testing.T) {
	p := analystPrincipal()

	if err := CheckTenant(p, "tenant-a"); err != nil {
		t.Errorf("own tenant should admit: %v", err)
	}
	err := CheckTenant(p, "tenant-b")
	if !faults.IsKind(err, faults.KindNotFound) {
		t.Errorf("cross-tenant access = %v, want not-found", err)
	}
}

func TestRequireMiddleware(t *testing.T) {
	var respondErr error
	respond := func(w http.ResponseWriter, r *http.Request, err error) {
		respondErr = err
		w.WriteHeader(http.StatusForbidden)
	}

	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	t.Run("admits", func(t *testing.T) {
		respondErr, reached = nil, false
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(auth.WithPrincipal(r.Context(), analystPrincipal()))
		Require(RequireRole(models.RoleAnalyst), respond)(next).ServeHTTP(httptest.NewRecorder(), r)
		if !reached || respondErr != nil {
			t.Errorf("reached = %v, respondErr = %v", reached, respondErr)
		}
	})

	t.Run("denies", func(t *testing.T) {
		respondErr, reached = nil, false
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(auth.WithPrincipal(r.Context(), analystPrincipal()))
		Require(RequireRole(models.RoleAdmin), respond)(next).ServeHTTP(httptest.NewRecorder(), r)
		if reached {
			t.Error("handler reached despite denial")
		}
		if !faults.IsKind(respondErr, faults.KindForbidden) {
			t.Errorf("respondErr = %v, want forbidden", respondErr)
		}
	})

	t.Run("missing principal", func(t *testing.T) {
		respondErr, reached = nil, false
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		Require(RequireRole(models.RoleViewer), respond)(next).ServeHTTP(httptest.NewRecorder(), r)
		if reached {
			t.Error("handler reached without a principal")
		}
		if !faults.IsKind(respondErr, faults.KindUnauthenticated) {
			t.Errorf("respondErr = %v, want unauthenticated", respondErr)
		}
	})
}
