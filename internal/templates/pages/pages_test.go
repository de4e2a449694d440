// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package pages_test

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/templates/pages"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func englishCtx() context.Context {
	return i18n.WithLocale(context.Background(), language.English)
}

func TestHome_Anonymous(t *testing.T) {
	html := render(t, englishCtx(), pages.Home())

	assert.Contains(t, html, "Hello, Stranger!")
	assert.Contains(t, html, `href="/auth/login"`)
	assert.NotContains(t, html, `href="/auth/logout"`)
	assert.Contains(t, html, `<html lang="en">`)
}

func TestHome_User(t *testing.T) {
	user := &models.User{Username: "alice", Confirmed: true, Role: models.Role{Permissions: 0x07}}
	ctx := auth.WithUser(englishCtx(), user)

	html := render(t, ctx, pages.Home())

	assert.Contains(t, html, "Hello, alice!")
	assert.Contains(t, html, `href="/auth/logout"`)
	assert.NotContains(t, html, `href="/admin"`)
	assert.NotContains(t, html, `href="/moderate"`)
}

func TestHome_Administrator(t *testing.T) {
	user := &models.User{Username: "boss", Confirmed: true, Role: models.Role{Permissions: 0xff}}
	ctx := auth.WithUser(englishCtx(), user)

	html := render(t, ctx, pages.Home())

	assert.Contains(t, html, `href="/admin"`)
	assert.Contains(t, html, `href="/moderate"`)
}

func TestHome_EscapesUsername(t *testing.T) {
	user := &models.User{Username: "<script>", Confirmed: true}
	ctx := auth.WithUser(englishCtx(), user)

	html := render(t, ctx, pages.Home())

	assert.NotContains(t, html, "Hello, <script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestLayout_Flashes(t *testing.T) {
	ctx := context.WithValue(englishCtx(), ctxkeys.Flashes{}, []session.Flash{
		{Category: session.FlashInfo, Message: "flash_logged_out"},
	})

	html := render(t, ctx, pages.Home())

	assert.Contains(t, html, `class="flash flash-info"`)
	assert.Contains(t, html, "You have been logged out.")
}

func TestLayout_StylesheetPath(t *testing.T) {
	ctx := context.WithValue(englishCtx(), ctxkeys.CSSPath{}, "/static/css/styles.css?v=abc123")

	html := render(t, ctx, pages.Home())

	assert.Contains(t, html, `href="/static/css/styles.css?v=abc123"`)
}

func TestAdmin(t *testing.T) {
	roles := []models.Role{{Name: "User", Permissions: 0x07}, {Name: "Administrator", Permissions: 0xff}}

	html := render(t, englishCtx(), pages.Admin(2, roles))

	assert.Contains(t, html, "There are 2 registered users.")
	assert.Contains(t, html, "Administrator: permissions 0xff")
}

func TestError(t *testing.T) {
	html := render(t, englishCtx(), pages.Error(403, "error_forbidden"))

	assert.Contains(t, html, `<p class="muted">403</p>`)
	assert.Contains(t, html, "You do not have permission to access this page.")
}
