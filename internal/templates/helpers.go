// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates holds the context helpers shared by the page
// components in its subpackages.
package templates

import (
	"context"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
)

// CSRFToken returns the CSRF token from the context.
func CSRFToken(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return i18n.T(ctx, messageID)
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return i18n.TData(ctx, messageID, data)
}

// TPlural translates a message that depends on count.
func TPlural(ctx context.Context, messageID string, count int) string {
	return i18n.TPlural(ctx, messageID, count)
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}

// CSSPath returns the path to the hashed CSS file.
func CSSPath(ctx context.Context) string {
	if path, ok := ctx.Value(ctxkeys.CSSPath{}).(string); ok {
		return path
	}
	return "/static/css/styles.css"
}

// GetUser returns the authenticated user from context, or nil if not logged in.
func GetUser(ctx context.Context) *models.User {
	return auth.GetUser(ctx)
}

// Can reports whether the current user holds perm.
func Can(ctx context.Context, perm models.Permission) bool {
	return auth.Can(ctx, perm)
}

// Flashes returns the flash messages popped for this request.
func Flashes(ctx context.Context) []session.Flash {
	if flashes, ok := ctx.Value(ctxkeys.Flashes{}).([]session.Flash); ok {
		return flashes
	}
	return nil
}
