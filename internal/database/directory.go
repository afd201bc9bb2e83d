// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/models"
)

// PrincipalRecord is a directory row including the credential hash.
// Only the login path sees the hash; everything downstream works with the
// embedded Principal.
type PrincipalRecord struct {
	models.Principal
	PasswordHash string
}

const principalColumns = `id, email, password_hash, tenant_id, role, permissions, status`

// PrincipalByID resolves a principal from the directory by id.
// Unknown ids return a not-found fault; callers on the admission path
// translate that to an authentication failure.
func (s *Store) PrincipalByID(ctx context.Context, id string) (*models.Principal, error) {
	rec, err := s.principalWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return &rec.Principal, nil
}

// PrincipalByEmail resolves a directory row by email, including the
// credential hash for login verification.
func (s *Store) PrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error) {
	return s.principalWhere(ctx, "email = ?", email)
}

func (s *Store) principalWhere(ctx context.Context, where string, arg any) (*PrincipalRecord, error) {
	start := time.Now()
	var (
		rec      PrincipalRecord
		roleName string
		perms    string
		status   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE `+where,
		arg,
	).Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.TenantID,
		&roleName, &perms, &status)
	recordQuery("get_principal", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("principal not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}

	role, _ := models.ParseRole(roleName)
	rec.Role = role
	rec.RoleName = role.String()
	rec.Status = models.AccountStatus(status)

	var names []string
	if perms != "" {
		if err := json.Unmarshal([]byte(perms), &names); err != nil {
			return nil, fmt.Errorf("decoding permissions: %w", err)
		}
	}
	rec.Permissions = make(models.PermissionSet, len(names))
	for _, n := range names {
		rec.Permissions[models.Permission(n)] = struct{}{}
	}
	return &rec, nil
}

// CreatePrincipal inserts a directory row. The caller supplies the bcrypt
// hash; plaintext credentials never reach the store.
func (s *Store) CreatePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	perms, err := json.Marshal(rec.Permissions.Slice())
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}
	return s.withWriteTx(ctx, "create_principal", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO principals (id, email, password_hash, tenant_id, role, permissions, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Email, rec.PasswordHash, rec.TenantID,
			rec.Role.String(), string(perms), string(rec.Status), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting principal: %w", err)
		}
		return nil
	})
}

// UpdatePrincipalStatus changes an account's lifecycle state.
func (s *Store) UpdatePrincipalStatus(ctx context.Context, id string, status models.AccountStatus) error {
	return s.withWriteTx(ctx, "update_principal_status", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE principals SET status = ? WHERE id = ?`, string(status), id)
		if err != nil {
			return fmt.Errorf("updating principal status: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if affected == 0 {
			return faults.NotFound("principal not found")
		}
		return nil
	})
}
