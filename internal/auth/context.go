// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers and the permission gate.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
)

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxkeys.User{}, user)
}

// GetUser returns the authenticated user from the context, or nil if not authenticated.
func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(ctxkeys.User{}).(*models.User); ok {
		return user
	}
	return nil
}

// IsAuthenticated returns true if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUser(ctx) != nil
}

// State returns the life cycle state of the request's user.
func State(ctx context.Context) models.State {
	return models.StateOf(GetUser(ctx))
}
