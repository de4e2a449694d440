// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/database"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/models"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/repository"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/services/password"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// Tests hash a lot of passwords; the cheapest bcrypt cost keeps them fast.
func init() {
	password.Cost = bcrypt.MinCost
}

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an unconfirmed user with the default role.
func NewTestUser(t *testing.T, repo *repository.Repository, email, username, plaintext string) *models.User {
	t.Helper()
	ctx := context.Background()

	role, err := repo.GetDefaultRole(ctx)
	require.NoError(t, err)

	user := &models.User{Email: email, Username: username, RoleID: role.ID}
	require.NoError(t, user.SetPassword(plaintext))
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

// NewConfirmedUser creates a confirmed user holding the named role.
func NewConfirmedUser(t *testing.T, repo *repository.Repository, email, username, plaintext, roleName string) *models.User {
	t.Helper()
	ctx := context.Background()

	role, err := repo.GetRoleByName(ctx, roleName)
	require.NoError(t, err)

	user := &models.User{Email: email, Username: username, RoleID: role.ID, Confirmed: true}
	require.NoError(t, user.SetPassword(plaintext))
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

// RecordingSender is an email.Sender that keeps every message in memory.
type RecordingSender struct {
	mu       sync.Mutex
	messages []email.Message
	Err      error
}

func (s *RecordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (s *RecordingSender) Messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.messages...)
}

// Last returns the most recent message. It fails the test if there is none.
func (s *RecordingSender) Last(t *testing.T) email.Message {
	t.Helper()
	msgs := s.Messages()
	require.NotEmpty(t, msgs, "no mail was sent")
	return msgs[len(msgs)-1]
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// CaptureLogs routes the default logger into the returned buffer until the
// test ends. Tests using it must not run in parallel.
func CaptureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(prev)
	})
	return &buf
}
