package mailer

import (
	"context"
	"errors"
	"maps"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// Config holds sender defaults applied when a template does not override them.
// Parsed from the environment by internal/config.
type Config struct {
	FromEmail string `env:"MAIL_FROM_EMAIL" envDefault:"no-reply@localhost"`
	FromName  string `env:"MAIL_FROM_NAME"`
	ReplyTo   string `env:"MAIL_REPLY_TO"`
}

// Mailer turns rendered templates into emails and hands them to a Sender.
type Mailer struct {
	sender Sender
	config Config
}

// New creates a Mailer. The sender is the only transport; nothing is global.
func New(sender Sender, cfg Config) *Mailer {
	return &Mailer{sender: sender, config: cfg}
}

// Compose builds the email for a rendered template. Template from/reply-to
// values override the configured defaults.
func (m *Mailer) Compose(r *Rendered, to queue.Recipient, tags Tags) *Email {
	fromEmail := r.FromEmail
	if fromEmail == "" {
		fromEmail = m.config.FromEmail
	}
	fromName := r.FromName
	if fromName == "" {
		fromName = m.config.FromName
	}
	replyTo := r.ReplyTo
	if replyTo == "" {
		replyTo = m.config.ReplyTo
	}

	return &Email{
		From:    Address(fromName, fromEmail),
		To:      []string{Address(to.Name, to.Email)},
		ReplyTo: replyTo,
		Subject: r.Subject,
		HTML:    r.HTML,
		Text:    r.Text,
		Tags:    maps.Clone(tags),
	}
}

// Send validates the email and delivers it, returning the provider message id.
func (m *Mailer) Send(ctx context.Context, email *Email) (string, error) {
	if err := email.Validate(); err != nil {
		return "", err
	}
	id, err := m.sender.Send(ctx, email)
	if err != nil {
		return "", errors.Join(ErrSendFailed, err)
	}
	return id, nil
}
