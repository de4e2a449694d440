// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"github.com/stretchr/testify/assert"
)

func userWith(perms models.Permission, confirmed bool) *models.User {
	return &models.User{ID: 1, Confirmed: confirmed, Role: models.Role{Permissions: perms}}
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, auth.GetUser(ctx))
	assert.False(t, auth.IsAuthenticated(ctx))

	user := userWith(0x07, true)
	ctx = auth.WithUser(ctx, user)

	assert.Same(t, user, auth.GetUser(ctx))
	assert.True(t, auth.IsAuthenticated(ctx))
}

func TestState(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, models.StateAnonymous, auth.State(ctx))
	assert.Equal(t, models.StateAuthenticatedUnconfirmed, auth.State(auth.WithUser(ctx, userWith(0x07, false))))
	assert.Equal(t, models.StateAuthenticatedConfirmed, auth.State(auth.WithUser(ctx, userWith(0x07, true))))
}

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.User
		perm    models.Permission
		allowed bool
	}{
		{"anonymous", nil, models.PermFollow, false},
		{"user follows", userWith(0x07, true), models.PermFollow, true},
		{"user cannot moderate", userWith(0x07, true), models.PermModerateComments, false},
		{"moderator moderates", userWith(0x0f, true), models.PermModerateComments, true},
		{"moderator cannot administer", userWith(0x0f, true), models.PermAdminister, false},
		{"administrator", userWith(0xff, true), models.PermAdminister, true},
		{"combined bits need all", userWith(0x01, true), models.PermFollow | models.PermComment, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.user != nil {
				ctx = auth.WithUser(ctx, tt.user)
			}

			err := auth.Require(ctx, tt.perm)

			assert.Equal(t, tt.allowed, auth.Can(ctx, tt.perm))
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, auth.ErrForbidden)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	ctx := auth.WithUser(context.Background(), userWith(0x0f, true))
	assert.ErrorIs(t, auth.RequireAdmin(ctx), auth.ErrForbidden)

	ctx = auth.WithUser(context.Background(), userWith(0xff, true))
	assert.NoError(t, auth.RequireAdmin(ctx))
}
