// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/password"
)

// Form field names, shared with the templates.
const (
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldPassword    = "password"
	FieldPassword2   = "password2"
	FieldOldPassword = "old_password"
)

const maxFieldLength = 64

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

// FieldError is an i18n message id plus its template data.
type FieldError struct {
	Message string
	Data    map[string]any
}

// FieldErrors collects validation failures per form field. It is returned as
// an error so callers can tell bad input from other failures with errors.As.
type FieldErrors map[string][]FieldError

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid form fields: " + strings.Join(fields, ", ")
}

// Add records a failure for field.
func (e FieldErrors) Add(field, message string, data map[string]any) {
	e[field] = append(e[field], FieldError{Message: message, Data: data})
}

// Has reports whether field has at least one failure.
func (e FieldErrors) Has(field string) bool {
	return len(e[field]) > 0
}

// Err returns nil when nothing was recorded.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Directory looks users up by their unique attributes.
type Directory interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type RegisterForm struct {
	Email     string `form:"email"`
	Username  string `form:"username"`
	Password  string `form:"password"`
	Password2 string `form:"password2"`
}

type LoginForm struct {
	Email      string `form:"email"`
	Password   string `form:"password"`
	RememberMe bool   `form:"remember_me"`
}

type ChangePasswordForm struct {
	OldPassword string `form:"old_password"`
	Password    string `form:"password"`
	Password2   string `form:"password2"`
}

type ForgotPasswordForm struct {
	Email string `form:"email"`
}

type ResetPasswordForm struct {
	Password  string `form:"password"`
	Password2 string `form:"password2"`
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration checks the form and the uniqueness of email and
// username. Only lookup failures are returned as the error value.
func ValidateRegistration(ctx context.Context, dir Directory, policy *password.Policy, f RegisterForm) (FieldErrors, error) {
	errs := FieldErrors{}
	email := NormalizeEmail(f.Email)
	username := strings.TrimSpace(f.Username)

	validateEmail(errs, email)

	switch {
	case username == "":
		errs.Add(FieldUsername, "validation_required", nil)
	case utf8.RuneCountInString(username) > maxFieldLength:
		errs.Add(FieldUsername, "validation_length", lengthData(1, maxFieldLength))
	case !usernamePattern.MatchString(username):
		errs.Add(FieldUsername, "validation_username_format", nil)
	}

	validateNewPassword(errs, policy, f.Password, f.Password2, email, username)

	if !errs.Has(FieldEmail) {
		exists, err := dir.EmailExists(ctx, email)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add(FieldEmail, "validation_email_taken", nil)
		}
	}
	if !errs.Has(FieldUsername) {
		exists, err := dir.UsernameExists(ctx, username)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add(FieldUsername, "validation_username_taken", nil)
		}
	}

	return errs, nil
}

// ValidateLogin checks that both fields are present and the email is well formed.
func ValidateLogin(f LoginForm) FieldErrors {
	errs := FieldErrors{}
	validateEmail(errs, NormalizeEmail(f.Email))
	if f.Password == "" {
		errs.Add(FieldPassword, "validation_required", nil)
	}
	return errs
}

// ValidateChangePassword checks the new password against the policy.
func ValidateChangePassword(policy *password.Policy, f ChangePasswordForm, userAttributes ...string) FieldErrors {
	errs := FieldErrors{}
	if f.OldPassword == "" {
		errs.Add(FieldOldPassword, "validation_required", nil)
	}
	validateNewPassword(errs, policy, f.Password, f.Password2, userAttributes...)
	return errs
}

// ValidateForgotPassword checks the email field.
func ValidateForgotPassword(f ForgotPasswordForm) FieldErrors {
	errs := FieldErrors{}
	validateEmail(errs, NormalizeEmail(f.Email))
	return errs
}

// ValidateResetPassword checks the new password against the policy.
func ValidateResetPassword(policy *password.Policy, f ResetPasswordForm, userAttributes ...string) FieldErrors {
	errs := FieldErrors{}
	validateNewPassword(errs, policy, f.Password, f.Password2, userAttributes...)
	return errs
}

func validateEmail(errs FieldErrors, email string) {
	switch {
	case email == "":
		errs.Add(FieldEmail, "validation_required", nil)
	case utf8.RuneCountInString(email) > maxFieldLength:
		errs.Add(FieldEmail, "validation_length", lengthData(1, maxFieldLength))
	case !isEmail(email):
		errs.Add(FieldEmail, "validation_email_invalid", nil)
	}
}

func validateNewPassword(errs FieldErrors, policy *password.Policy, pw, pw2 string, userAttributes ...string) {
	if pw == "" {
		errs.Add(FieldPassword, "validation_required", nil)
		return
	}
	if pw != pw2 {
		errs.Add(FieldPassword, "validation_passwords_match", nil)
	}
	for _, code := range policy.Validate(pw, userAttributes...) {
		errs.Add(FieldPassword, code, map[string]any{"MinLength": policy.MinLength})
	}
}

// isEmail accepts bare addresses only, no display names.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func lengthData(minLen, maxLen int) map[string]any {
	return map[string]any{"Min": minLen, "Max": maxLen}
}
