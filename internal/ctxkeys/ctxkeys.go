// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ctxkeys defines typed context keys used across packages.
package ctxkeys

// CSRFToken is the context key for the CSRF token.
type CSRFToken struct{}

// CSSPath is the context key for the CSS path.
type CSSPath struct{}

// User is the context key for the authenticated user.
type User struct{}

// Flashes is the context key for the flash messages of the current request.
type Flashes struct{}
