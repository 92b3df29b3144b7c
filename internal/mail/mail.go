// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package mail delivers transactional email. The SMTP sender covers
// production; the log sender stands in during development so flows that
// send email work without an SMTP server.
package mail

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/idlink/idlink/internal/auth"
)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope and header sender address.
	From string
}

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

var _ auth.EmailSender = (*SMTPSender)(nil)

// NewSMTPSender creates a sender for the given relay. Credentials are
// optional; when present, PLAIN auth is used.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	errb := oops.Code("MAIL_CONFIG_INVALID")
	if cfg.Host == "" {
		return nil, errb.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errb.Errorf("sender address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errb.With("host", cfg.Host).Wrapf(err, "failed to create smtp client")
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

// Send delivers one plain-text message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	errb := oops.Code("MAIL_SEND_FAILED").With("to", to).With("subject", subject)

	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return errb.Wrapf(err, "invalid sender address")
	}
	if err := msg.To(to); err != nil {
		return errb.Wrapf(err, "invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errb.Wrapf(err, "smtp delivery failed")
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It is
// the development default when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

var _ auth.EmailSender = (*LogSender)(nil)

// NewLogSender creates a log-only sender. A nil logger uses the default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and reports success.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.InfoContext(ctx, "email logged instead of sent",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}
