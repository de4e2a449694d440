// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

// ErrRelayUnavailable is returned while the circuit breaker is open.
var ErrRelayUnavailable = errors.New("mail relay unavailable")

// SMTPSender delivers mails through an SMTP relay. Transient failures are
// retried with exponential backoff; repeated failures open a circuit breaker
// so queued mails fail fast until the relay recovers.
type SMTPSender struct {
	cfg     *config.SMTPConfig
	breaker *gobreaker.CircuitBreaker
	backoff func() retry.Backoff
	dial    func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPSender validates cfg and returns a sender for it.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	s := &SMTPSender{
		cfg: cfg,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}
	s.dial = s.dialAndSend
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "smtp",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return s, nil
}

// Send builds the mail and delivers it.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	msg, err := s.build(m)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (any, error) {
		return nil, retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
			if err := s.dial(ctx, msg); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrRelayUnavailable
	}
	return err
}

func (s *SMTPSender) build(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Implicit TLS on 465, STARTTLS everywhere else
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
