// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
)

// ErrForbidden is returned when the user lacks a required permission.
var ErrForbidden = errors.New("forbidden")

// Can reports whether the request's user holds perm.
func Can(ctx context.Context, perm models.Permission) bool {
	return GetUser(ctx).Can(perm)
}

// Require returns nil if the request's user holds perm and an error wrapping
// ErrForbidden otherwise, anonymous users included.
func Require(ctx context.Context, perm models.Permission) error {
	if !Can(ctx, perm) {
		return fmt.Errorf("%w: permission %#x required", ErrForbidden, int64(perm))
	}
	return nil
}

// RequireAdmin is Require for the administer permission.
func RequireAdmin(ctx context.Context) error {
	return Require(ctx, models.PermAdminister)
}
