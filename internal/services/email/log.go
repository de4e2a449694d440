// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
)

// LogSender writes mails to the log instead of sending them. It is used in
// development when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail_logged", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
