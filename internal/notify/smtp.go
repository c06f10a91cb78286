// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package notify delivers password reset notices to users.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// SMTPNotifier sends password reset emails over SMTP with plain auth.
type SMTPNotifier struct {
	host     string
	port     int
	from     string
	username string
	password string
}

// NewSMTPNotifier creates an SMTPNotifier.
func NewSMTPNotifier(host string, port int, from, username, password string) (*SMTPNotifier, error) {
	if host == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if from == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	return &SMTPNotifier{
		host:     host,
		port:     port,
		from:     from,
		username: username,
		password: password,
	}, nil
}

// Send emails a password reset token to addr.
func (n *SMTPNotifier) Send(ctx context.Context, addr, token string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("email", addr).Wrap(err)
	}

	msg := email.NewEmail()
	msg.From = n.from
	msg.To = []string{addr}
	msg.Subject = "Password reset requested"
	msg.Text = fmt.Appendf(nil,
		"A password reset was requested for your account.\n\n"+
			"Reset token: %s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		token)

	hostPort := fmt.Sprintf("%s:%d", n.host, n.port)
	var a smtp.Auth
	if n.username != "" {
		a = smtp.PlainAuth("", n.username, n.password, n.host)
	}
	if err := msg.Send(hostPort, a); err != nil {
		return oops.
			Code("NOTIFY_SEND_FAILED").
			With("email", addr).
			With("host", n.host).
			Wrap(err)
	}
	return nil
}

// LogNotifier writes reset notices to the log instead of sending mail.
// Used in development and tests where no SMTP relay is available.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the reset notice.
func (n *LogNotifier) Send(ctx context.Context, addr, token string) error {
	n.logger.InfoContext(ctx, "password reset notice",
		"email", addr,
		"token", token,
	)
	return nil
}

var (
	_ auth.Notifier = (*SMTPNotifier)(nil)
	_ auth.Notifier = (*LogNotifier)(nil)
)
