// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
)

// GetDefaultRole returns the role assigned to new users.
func (r *Repository) GetDefaultRole(ctx context.Context) (*models.Role, error) {
	var role models.Role
	err := r.q.GetContext(ctx, &role,
		`SELECT id, name, is_default, permissions FROM roles WHERE is_default = 1 LIMIT 1`)
	if err != nil {
		return nil, wrapError(err)
	}
	return &role, nil
}

// GetRoleByName returns the role with the given name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.q.GetContext(ctx, &role,
		`SELECT id, name, is_default, permissions FROM roles WHERE name = ?`, name)
	if err != nil {
		return nil, wrapError(err)
	}
	return &role, nil
}

// ListRoles returns all roles ordered by permissions.
func (r *Repository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.q.SelectContext(ctx, &roles,
		`SELECT id, name, is_default, permissions FROM roles ORDER BY permissions`)
	if err != nil {
		return nil, wrapError(err)
	}
	return roles, nil
}
