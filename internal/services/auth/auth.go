// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account flows: registration, login,
// confirmation, password change and password reset.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/password"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWrongPassword      = errors.New("old password incorrect")
	ErrAlreadyConfirmed   = errors.New("account already confirmed")
	// ErrMailNotSent means the state change succeeded but the mail could not be queued.
	ErrMailNotSent = errors.New("mail could not be sent")
)

// Notifier sends the account mails.
type Notifier interface {
	SendConfirmation(ctx context.Context, to, username, token string) error
	SendPasswordReset(ctx context.Context, to, username, token string) error
}

type Service struct {
	repo   *repository.Repository
	dir    Directory
	tokens *token.Service
	mail   Notifier
	policy *password.Policy
	cfg    *config.AuthConfig
}

// Option configures a Service.
type Option func(*Service)

// WithDirectory replaces the lookups used to pre-check uniqueness on
// registration. The database constraints still decide.
func WithDirectory(dir Directory) Option {
	return func(s *Service) {
		s.dir = dir
	}
}

func NewService(repo *repository.Repository, tokens *token.Service, mail Notifier, cfg *config.AuthConfig, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		dir:    repo,
		tokens: tokens,
		mail:   mail,
		policy: password.NewPolicy(cfg.PasswordMinLength),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the password policy for use in handlers.
func (s *Service) Policy() *password.Policy {
	return s.policy
}

// Register creates an unconfirmed account and mails a confirmation link.
// Invalid input is reported as FieldErrors. If the account was created but
// the mail failed, the user is returned together with ErrMailNotSent.
func (s *Service) Register(ctx context.Context, f RegisterForm) (*models.User, error) {
	errs, err := ValidateRegistration(ctx, s.dir, s.policy, f)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if errs.Err() != nil {
		return nil, errs
	}

	user := &models.User{
		Email:    NormalizeEmail(f.Email),
		Username: strings.TrimSpace(f.Username),
	}
	if err := user.SetPassword(f.Password); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		role, err := s.roleFor(ctx, tx, user.Email)
		if err != nil {
			return err
		}
		user.RoleID = role.ID
		return tx.CreateUser(ctx, user)
	})
	// The uniqueness check above races with concurrent registrations; the
	// database constraint is the final word.
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, FieldErrors{FieldEmail: {{Message: "validation_email_taken"}}}
	case errors.Is(err, repository.ErrDuplicateUsername):
		return nil, FieldErrors{FieldUsername: {{Message: "validation_username_taken"}}}
	case err != nil:
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "email", user.Email, "role", user.Role.Name)

	if err := s.sendConfirmation(ctx, user); err != nil {
		return user, err
	}
	return user, nil
}

func (s *Service) roleFor(ctx context.Context, repo *repository.Repository, email string) (*models.Role, error) {
	if s.cfg.AdminEmail != "" && email == s.cfg.AdminEmail {
		return repo.GetRoleByName(ctx, models.RoleAdministrator)
	}
	return repo.GetDefaultRole(ctx)
}

// Login authenticates a user. Unknown email and wrong password produce the
// same error and take the same time.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*models.User, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			password.VerifyDummy(plaintext)
			slog.WarnContext(ctx, "login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.VerifyPassword(plaintext) {
		slog.WarnContext(ctx, "login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	slog.InfoContext(ctx, "login_success", "user_id", user.ID, "email", email)
	return user, nil
}

// Confirm marks user as confirmed when tokenString is a valid confirmation
// token issued for that same user.
func (s *Service) Confirm(ctx context.Context, user *models.User, tokenString string) error {
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}

	id, err := s.tokens.VerifyUserID(tokenString, token.ActionConfirm)
	if err != nil {
		slog.WarnContext(ctx, "confirm_failed", "user_id", user.ID, "reason", err.Error())
		return ErrInvalidToken
	}
	if id != user.ID {
		slog.WarnContext(ctx, "confirm_failed", "user_id", user.ID, "reason", "subject_mismatch")
		return ErrInvalidToken
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		return tx.ConfirmUser(ctx, user.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to confirm user: %w", err)
	}

	user.Confirmed = true
	slog.InfoContext(ctx, "confirm_success", "user_id", user.ID)
	return nil
}

// ResendConfirmation mails a fresh confirmation link.
func (s *Service) ResendConfirmation(ctx context.Context, user *models.User) error {
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}
	return s.sendConfirmation(ctx, user)
}

func (s *Service) sendConfirmation(ctx context.Context, user *models.User) error {
	tok, err := s.tokens.Generate(user.ID, token.ActionConfirm, s.cfg.ConfirmTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to generate confirmation token: %w", err)
	}
	if err := s.mail.SendConfirmation(ctx, user.Email, user.Username, tok); err != nil {
		slog.ErrorContext(ctx, "mail_failed", "user_id", user.ID, "kind", "confirmation", "error", err)
		return ErrMailNotSent
	}
	return nil
}

// ChangePassword replaces the password after verifying the old one. On any
// error the stored hash is left untouched.
func (s *Service) ChangePassword(ctx context.Context, user *models.User, f ChangePasswordForm) error {
	if errs := ValidateChangePassword(s.policy, f, user.Email, user.Username); errs.Err() != nil {
		return errs
	}

	if !user.VerifyPassword(f.OldPassword) {
		slog.WarnContext(ctx, "password_change_failed", "user_id", user.ID, "reason", "invalid_password")
		return ErrWrongPassword
	}

	hash, err := password.Hash(f.Password)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		return tx.UpdateUserPassword(ctx, user.ID, hash)
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	user.PasswordHash = hash
	slog.InfoContext(ctx, "password_changed", "user_id", user.ID)
	return nil
}

// ForgotPassword mails a reset link if an account with the email exists.
// The result is the same whether or not it does; only bad input and
// lookup failures are returned.
func (s *Service) ForgotPassword(ctx context.Context, f ForgotPasswordForm) error {
	if errs := ValidateForgotPassword(f); errs.Err() != nil {
		return errs
	}
	email := NormalizeEmail(f.Email)

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		slog.InfoContext(ctx, "password_reset_requested", "email", email, "known", false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	tok, err := s.tokens.GenerateForSubject(user.Email, token.ActionReset, s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	if err := s.mail.SendPasswordReset(ctx, user.Email, user.Username, tok); err != nil {
		slog.ErrorContext(ctx, "mail_failed", "user_id", user.ID, "kind", "password_reset", "error", err)
		return nil
	}

	slog.InfoContext(ctx, "password_reset_requested", "email", email, "known", true)
	return nil
}

// ResetPassword sets a new password for the account named in a reset token.
// Bad or expired tokens and tokens for vanished accounts return
// ErrInvalidToken; a policy violation returns FieldErrors. Database failures
// are returned wrapped.
func (s *Service) ResetPassword(ctx context.Context, tokenString string, f ResetPasswordForm) error {
	email, err := s.tokens.Verify(tokenString, token.ActionReset)
	if err != nil {
		slog.WarnContext(ctx, "password_reset_failed", "reason", err.Error())
		return ErrInvalidToken
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		slog.WarnContext(ctx, "password_reset_failed", "reason", "user_not_found")
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if errs := ValidateResetPassword(s.policy, f, user.Email, user.Username); errs.Err() != nil {
		return errs
	}

	hash, err := password.Hash(f.Password)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		return tx.UpdateUserPassword(ctx, user.ID, hash)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.InfoContext(ctx, "password_reset_success", "user_id", user.ID)
	return nil
}

// UserByID loads the user of a session.
func (s *Service) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}
