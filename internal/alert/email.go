package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"partner-gateway/internal/config"
)

// EmailSender delivers one message to one recipient. Implementations make
// a single attempt; the dispatcher owns the no-retry policy.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body, contentType string) error
}

// SMTPSender sends mail over plain SMTP with optional auth. No mail
// library ships in our stack; net/smtp covers the single-recipient
// plain-text alerts this core needs.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body, contentType string) error {
	if to == "" {
		return fmt.Errorf("alert: email recipient required")
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&msg, "\r\n%s\r\n", body)

	// net/smtp has no context support; run the send in a goroutine so the
	// caller's deadline still bounds the wait.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
