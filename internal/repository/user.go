// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
)

const selectUser = `
SELECT u.id, u.email, u.username, u.password_hash, u.confirmed, u.role_id,
       u.created_at, u.updated_at,
       r.id AS "role.id", r.name AS "role.name",
       r.is_default AS "role.is_default", r.permissions AS "role.permissions"
FROM users u
JOIN roles r ON r.id = u.role_id`

// CreateUser inserts the user and fills in ID, timestamps and Role.
// Unique violations are reported as ErrDuplicateEmail or ErrDuplicateUsername.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	var id int64
	err := r.q.GetContext(ctx, &id,
		`INSERT INTO users (email, username, password_hash, confirmed, role_id)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		user.Email, user.Username, user.PasswordHash, user.Confirmed, user.RoleID)
	if err != nil {
		return wrapError(err)
	}

	created, err := r.GetUserByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload user: %w", err)
	}
	*user = *created
	return nil
}

// GetUserByID retrieves a user with its role.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, selectUser+` WHERE u.id = ?`, id)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, selectUser+` WHERE u.email = ?`, email)
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, selectUser+` WHERE u.username = ?`, username)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.q.GetContext(ctx, &user, query, arg); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// EmailExists reports whether a user with the email exists, ignoring case.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
	return exists, wrapError(err)
}

// UsernameExists reports whether a user with the username exists.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
	return exists, wrapError(err)
}

// ConfirmUser marks the user as confirmed.
func (r *Repository) ConfirmUser(ctx context.Context, id int64) error {
	return r.update(ctx,
		`UPDATE users SET confirmed = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
}

// UpdateUserPassword replaces the user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.update(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, passwordHash, id)
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, wrapError(err)
}

func (r *Repository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
