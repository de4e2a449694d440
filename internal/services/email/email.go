// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email builds the account mails and hands them to a Sender.
package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/i18n"
)

// Message is a plain text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service renders the confirmation and password reset mails.
type Service struct {
	out     Sender
	baseURL string
}

// NewService creates a new email service sending through out.
func NewService(out Sender, baseURL string) *Service {
	return &Service{
		out:     out,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// SendConfirmation sends the account confirmation link.
func (s *Service) SendConfirmation(ctx context.Context, to, username, token string) error {
	link := s.link("/auth/confirm/", token)

	return s.send(ctx, to, "email_confirm_subject", "email_confirm_body", map[string]any{
		"Username": username,
		"Link":     link,
	})
}

// SendPasswordReset sends the password reset link.
func (s *Service) SendPasswordReset(ctx context.Context, to, username, token string) error {
	link := s.link("/auth/reset_pwd/", token)

	return s.send(ctx, to, "email_reset_subject", "email_reset_body", map[string]any{
		"Username": username,
		"Link":     link,
	})
}

func (s *Service) link(path, token string) string {
	return s.baseURL + path + url.PathEscape(token)
}

func (s *Service) send(ctx context.Context, to, subjectID, bodyID string, data map[string]any) error {
	msg := Message{
		To:      to,
		Subject: i18n.T(ctx, subjectID),
		Body:    i18n.TData(ctx, bodyID, data),
	}
	if err := s.out.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending %s: %w", subjectID, err)
	}
	return nil
}
