// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func newTestSender(t *testing.T, dial func(context.Context, *mail.Msg) error) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(&config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	require.NoError(t, err)
	s.dial = dial
	s.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return s
}

func TestSMTPSender_Send(t *testing.T) {
	var got *mail.Msg
	s := newTestSender(t, func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	})

	err := s.Send(context.Background(), Message{To: "a@x.com", Subject: "Hi", Body: "Body"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Hi"}, got.GetGenHeader(mail.HeaderSubject))
}

func TestSMTPSender_RetriesTransientFailure(t *testing.T) {
	calls := 0
	s := newTestSender(t, func(context.Context, *mail.Msg) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	err := s.Send(context.Background(), Message{To: "a@x.com"})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSMTPSender_GivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("relay down")
	s := newTestSender(t, func(context.Context, *mail.Msg) error {
		calls++
		return boom
	})

	err := s.Send(context.Background(), Message{To: "a@x.com"})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestSMTPSender_BreakerOpens(t *testing.T) {
	calls := 0
	s := newTestSender(t, func(context.Context, *mail.Msg) error {
		calls++
		return errors.New("relay down")
	})

	for range 5 {
		require.Error(t, s.Send(context.Background(), Message{To: "a@x.com"}))
	}
	before := calls

	err := s.Send(context.Background(), Message{To: "a@x.com"})

	require.ErrorIs(t, err, ErrRelayUnavailable)
	assert.Equal(t, before, calls)
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	s := newTestSender(t, func(context.Context, *mail.Msg) error { return nil })

	err := s.Send(context.Background(), Message{To: "not an address"})

	assert.Error(t, err)
}
