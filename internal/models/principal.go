// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package models

// Role is an ordered enumeration of principal roles.
// The numeric ordering is the authorization order: a request gated on role R
// succeeds for any principal whose role compares >= R.
type Role int

const (
	// RoleViewer is the default role with read-only access to own-tenant data.
	RoleViewer Role = iota

	// RoleAnalyst can ingest and modify interaction data, inherits viewer.
	RoleAnalyst

	// RoleAdmin has full access including user management, inherits analyst.
	RoleAdmin
)

// roleNames maps roles to their wire representation.
var roleNames = map[Role]string{
	RoleViewer:  "viewer",
	RoleAnalyst: "analyst",
	RoleAdmin:   "admin",
}

// String returns the wire name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether the role satisfies the given minimum role.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole resolves a wire name to a Role.
// Unrecognized names resolve to RoleViewer with ok=false so a corrupted
// role claim can never escalate.
func ParseRole(name string) (Role, bool) {
	for role, n := range roleNames {
		if n == name {
			return role, true
		}
	}
	return RoleViewer, false
}

// Permission is a named capability carried by a principal.
type Permission string

// Permissions used by the ingestion surface.
const (
	PermInteractionsWrite Permission = "interactions:write"
	PermInteractionsRead  Permission = "interactions:read"
	PermCustomersRead     Permission = "customers:read"
	PermAnalyticsRead     Permission = "analytics:read"
	PermUsersManage       Permission = "users:manage"
)

// PermissionSet is a set of capabilities with membership combinators.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports whether the set holds the permission.
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsAny reports whether the set holds at least one of the permissions.
//
// An empty requirement is satisfied vacuously.
func (s PermissionSet) ContainsAny(perms ...Permission) bool {
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if s.Contains(p) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether the set holds every one of the permissions.
func (s PermissionSet) ContainsAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Contains(p) {
			return false
		}
	}
	return true
}

// Slice returns the permissions as strings for claims serialization.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}

// AccountStatus is the lifecycle state of a principal's account.
type AccountStatus string

const (
	// StatusActive is a usable account.
	StatusActive AccountStatus = "active"

	// StatusSuspended is a temporarily disabled account.
	StatusSuspended AccountStatus = "suspended"

	// StatusDeleted is a tombstoned account.
	StatusDeleted AccountStatus = "deleted"
)

// Principal is the authenticated identity attached to a request.
// It is resolved once during admission control and immutable for the life of
// the request. Principals are read from the user directory; the ingestion
// core never persists them.
type Principal struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	Role        Role          `json:"-"`
	RoleName    string        `json:"role"`
	Permissions PermissionSet `json:"-"`
	TenantID    string        `json:"tenant_id"`
	Status      AccountStatus `json:"status"`
}

// IsActive reports whether the account may authenticate.
// Suspended and deleted principals are rejected identically to unknown ones.
func (p *Principal) IsActive() bool {
	return p.Status == StatusActive
}
