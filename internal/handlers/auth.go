// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/auth"
	authsvc "codeberg.org/oliverandrich/go-webapp-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/session"
	authtpl "codeberg.org/oliverandrich/go-webapp-auth/internal/templates/auth"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains the handlers mounted under /auth.
type AuthHandlers struct {
	auth     *authsvc.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *authsvc.Service, sess *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		auth:     svc,
		sessions: sess,
	}
}

func (h *AuthHandlers) flash(c echo.Context, category, messageID, target string) error {
	return flashRedirect(c, h.sessions, category, messageID, target)
}

// LoginPage renders the login form.
func (h *AuthHandlers) LoginPage(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return Redirect(c, "/")
	}
	return Render(c, http.StatusOK, authtpl.Login(authsvc.LoginForm{}, nil, SafeNext(c.QueryParam("next"))))
}

// Login checks the credentials and starts a session bound to the client.
func (h *AuthHandlers) Login(c echo.Context) error {
	var form authsvc.LoginForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	next := SafeNext(c.QueryParam("next"))

	if errs := authsvc.ValidateLogin(form); errs.Err() != nil {
		return Render(c, http.StatusOK, authtpl.Login(form, errs, next))
	}

	user, err := h.auth.Login(c.Request().Context(), form.Email, form.Password)
	if errors.Is(err, authsvc.ErrInvalidCredentials) {
		invalid := session.Flash{Category: session.FlashError, Message: "flash_login_invalid"}
		return RenderWithFlash(c, http.StatusOK, invalid, authtpl.Login(form, nil, next))
	}
	if err != nil {
		return err
	}

	fingerprint := session.Fingerprint(c.RealIP(), c.Request().UserAgent())
	cookie, err := h.sessions.Create(user.ID, fingerprint, form.RememberMe)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)

	if next == "" {
		next = "/"
	}
	return Redirect(c, next)
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return h.flash(c, session.FlashInfo, "flash_logged_out", "/")
}

// RegisterPage renders the registration form.
func (h *AuthHandlers) RegisterPage(c echo.Context) error {
	return Render(c, http.StatusOK, authtpl.Register(authsvc.RegisterForm{}, nil))
}

// Register creates an unconfirmed account and sends the confirmation mail.
func (h *AuthHandlers) Register(c echo.Context) error {
	var form authsvc.RegisterForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}

	_, err := h.auth.Register(c.Request().Context(), form)

	var errs authsvc.FieldErrors
	switch {
	case errors.As(err, &errs):
		return Render(c, http.StatusOK, authtpl.Register(form, errs))
	case errors.Is(err, authsvc.ErrMailNotSent):
		return h.flash(c, session.FlashError, "flash_mail_failed", "/auth/login")
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashInfo, "flash_register_sent", "/auth/login")
}

// Confirm confirms the account of the logged in user with a mailed token.
func (h *AuthHandlers) Confirm(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())

	err := h.auth.Confirm(c.Request().Context(), user, c.Param("token"))
	switch {
	case errors.Is(err, authsvc.ErrAlreadyConfirmed):
		return Redirect(c, "/")
	case errors.Is(err, authsvc.ErrInvalidToken):
		return h.flash(c, session.FlashError, "flash_confirm_invalid", "/")
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashSuccess, "flash_confirmed", "/")
}

// ResendConfirmation mails a new confirmation link.
func (h *AuthHandlers) ResendConfirmation(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())

	err := h.auth.ResendConfirmation(c.Request().Context(), user)
	switch {
	case errors.Is(err, authsvc.ErrAlreadyConfirmed):
		return Redirect(c, "/")
	case errors.Is(err, authsvc.ErrMailNotSent):
		return h.flash(c, session.FlashError, "flash_mail_failed", "/")
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashInfo, "flash_confirm_resent", "/")
}

// Unconfirmed renders the page unconfirmed users are sent to.
func (h *AuthHandlers) Unconfirmed(c echo.Context) error {
	user := auth.GetUser(c.Request().Context())
	if user == nil || user.Confirmed {
		return Redirect(c, "/")
	}
	return Render(c, http.StatusOK, authtpl.Unconfirmed())
}

// ChangePasswordPage renders the change password form.
func (h *AuthHandlers) ChangePasswordPage(c echo.Context) error {
	return Render(c, http.StatusOK, authtpl.ChangePassword(nil))
}

// ChangePassword replaces the password of the logged in user.
func (h *AuthHandlers) ChangePassword(c echo.Context) error {
	var form authsvc.ChangePasswordForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	user := auth.GetUser(c.Request().Context())

	err := h.auth.ChangePassword(c.Request().Context(), user, form)

	var errs authsvc.FieldErrors
	switch {
	case errors.As(err, &errs):
		return Render(c, http.StatusOK, authtpl.ChangePassword(errs))
	case errors.Is(err, authsvc.ErrWrongPassword):
		wrong := session.Flash{Category: session.FlashError, Message: "flash_old_password_invalid"}
		return RenderWithFlash(c, http.StatusOK, wrong, authtpl.ChangePassword(nil))
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashSuccess, "flash_password_updated", "/")
}

// ForgotPasswordPage renders the form to request a reset link.
func (h *AuthHandlers) ForgotPasswordPage(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return Redirect(c, "/")
	}
	return Render(c, http.StatusOK, authtpl.ForgotPassword(authsvc.ForgotPasswordForm{}, nil))
}

// ForgotPassword sends a reset link. The response does not reveal whether
// the address belongs to an account.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return Redirect(c, "/")
	}

	var form authsvc.ForgotPasswordForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}

	err := h.auth.ForgotPassword(c.Request().Context(), form)

	var errs authsvc.FieldErrors
	switch {
	case errors.As(err, &errs):
		return Render(c, http.StatusOK, authtpl.ForgotPassword(form, errs))
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashInfo, "flash_reset_sent", "/auth/login")
}

// ResetPasswordPage renders the form to choose a new password.
func (h *AuthHandlers) ResetPasswordPage(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return Redirect(c, "/")
	}
	return Render(c, http.StatusOK, authtpl.ResetPassword(c.Param("token"), nil))
}

// ResetPassword sets a new password for the account named in the token.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	if auth.IsAuthenticated(c.Request().Context()) {
		return Redirect(c, "/")
	}

	var form authsvc.ResetPasswordForm
	if err := c.Bind(&form); err != nil {
		return echo.ErrBadRequest
	}
	tok := c.Param("token")

	err := h.auth.ResetPassword(c.Request().Context(), tok, form)

	var errs authsvc.FieldErrors
	switch {
	case errors.As(err, &errs):
		return Render(c, http.StatusOK, authtpl.ResetPassword(tok, errs))
	case errors.Is(err, authsvc.ErrInvalidToken):
		return h.flash(c, session.FlashError, "flash_reset_failed", "/")
	case err != nil:
		return err
	}
	return h.flash(c, session.FlashSuccess, "flash_password_reset", "/auth/login")
}
