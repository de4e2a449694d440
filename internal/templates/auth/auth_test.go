// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	authsvc "codeberg.org/oliverandrich/go-webapp-auth/internal/services/auth"
	authtpl "codeberg.org/oliverandrich/go-webapp-auth/internal/templates/auth"
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

func TestLogin(t *testing.T) {
	ctx := context.WithValue(englishCtx(), ctxkeys.CSRFToken{}, "csrf-123")
	form := authsvc.LoginForm{Email: "a@x.com", Password: "secret", RememberMe: true}

	html := render(t, ctx, authtpl.Login(form, nil, "/admin"))

	assert.Contains(t, html, `action="/auth/login?next=%2Fadmin"`)
	assert.Contains(t, html, `name="_csrf" value="csrf-123"`)
	assert.Contains(t, html, `value="a@x.com"`)
	assert.NotContains(t, html, "secret")
	assert.Contains(t, html, " checked")
	assert.Contains(t, html, `href="/auth/forget_pwd"`)
}

func TestLogin_NoNext(t *testing.T) {
	html := render(t, englishCtx(), authtpl.Login(authsvc.LoginForm{}, nil, ""))

	assert.Contains(t, html, `action="/auth/login"`)
	assert.NotContains(t, html, " checked")
}

func TestRegister_Errors(t *testing.T) {
	errs := authsvc.FieldErrors{}
	errs.Add(authsvc.FieldEmail, "validation_email_taken", nil)
	errs.Add(authsvc.FieldPassword, "password_min_length", map[string]any{"MinLength": 8})

	html := render(t, englishCtx(), authtpl.Register(authsvc.RegisterForm{Email: "a@x.com", Password: "hunter22"}, errs))

	assert.Contains(t, html, "Email already registered.")
	assert.Contains(t, html, "Password must be at least 8 characters long.")
	assert.Contains(t, html, `value="a@x.com"`)
	assert.NotContains(t, html, "hunter22")
}

func TestResetPassword(t *testing.T) {
	html := render(t, englishCtx(), authtpl.ResetPassword("a.b.c", nil))

	assert.Contains(t, html, `action="/auth/reset_pwd/a.b.c"`)
}

func TestResetPassword_EscapesToken(t *testing.T) {
	html := render(t, englishCtx(), authtpl.ResetPassword(`x"/><script>`, nil))

	assert.NotContains(t, html, "<script>")
}

func TestUnconfirmed(t *testing.T) {
	ctx := auth.WithUser(englishCtx(), &models.User{Username: "alice"})

	html := render(t, ctx, authtpl.Unconfirmed())

	assert.Contains(t, html, "alice")
	assert.Contains(t, html, `href="/auth/confirm"`)
}
