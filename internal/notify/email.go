package notify

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
)

// Emailer delivers transactional email.
type Emailer interface {
	SendEmail(ctx context.Context, to, subject, text string) error
}

// SMTPSender sends plain-text email over SMTP. Relay authentication is
// left to the deployment (authenticated relays sit behind localhost
// forwarders in production).
type SMTPSender struct {
	addr string
	from string
}

// NewSMTPSender builds a sender for host:port with the given from address.
func NewSMTPSender(host, port, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@nextslot.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

// SendEmail validates the recipient address and relays the message.
func (s *SMTPSender) SendEmail(_ context.Context, to, subject, text string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg := buildMessage(s.from, to, subject, text)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message, enough for any standard relay.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

// ValidEmail reports whether the address passes format validation.
func ValidEmail(addr string) bool {
	if addr == "" {
		return false
	}
	_, err := mail.ParseAddress(addr)
	return err == nil
}
