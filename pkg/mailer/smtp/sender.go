// Package smtp delivers mailer emails through an SMTP relay using gomail.
// It is meant for local development (Mailpit, MailHog) and self-hosted relays.
package smtp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/mailqueue/pkg/mailer"
)

// Config holds SMTP relay settings.
// Parsed from the environment by internal/config.
type Config struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	Port     int    `env:"SMTP_PORT" envDefault:"1025"`
}

var _ mailer.Sender = (*Sender)(nil)

// Dialer is the part of *gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender implements mailer.Sender over SMTP.
type Sender struct {
	dialer Dialer
	domain string
}

// New creates an SMTP sender for the relay in cfg.
func New(cfg Config) *Sender {
	return NewWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.Host)
}

// NewWithDialer creates a sender over a custom dialer. domain is used as the
// right-hand side of generated Message-IDs.
func NewWithDialer(d Dialer, domain string) *Sender {
	if domain == "" {
		domain = "localhost"
	}
	return &Sender{dialer: d, domain: domain}
}

// Send implements mailer.Sender. The returned id is the generated
// Message-ID header without angle brackets.
//
// gomail has no context support; the context is only checked before dialing.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := s.messageID()
	if err != nil {
		return "", fmt.Errorf("smtp: generate message id: %w", err)
	}

	if err := s.dialer.DialAndSend(buildMessage(email, id)); err != nil {
		return "", fmt.Errorf("smtp: send error: %w", err)
	}
	return id, nil
}

func buildMessage(email *mailer.Email, id string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", email.From)
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", "<"+id+">")
	if email.ReplyTo != "" {
		m.SetHeader("Reply-To", email.ReplyTo)
	}
	for k, v := range email.Headers {
		m.SetHeader(k, v)
	}
	if len(email.Tags) > 0 {
		m.SetHeader("X-Tags", formatTags(email.Tags))
	}

	switch {
	case email.HTML != "" && email.Text != "":
		m.SetBody("text/plain", email.Text)
		m.AddAlternative("text/html", email.HTML)
	case email.HTML != "":
		m.SetBody("text/html", email.HTML)
	default:
		m.SetBody("text/plain", email.Text)
	}
	return m
}

func formatTags(tags mailer.Tags) string {
	parts := make([]string, 0, len(tags))
	for k, v := range tags {
		if _, ok := v.(struct{}); ok || v == nil {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}

func (s *Sender) messageID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b) + "@" + s.domain, nil
}
