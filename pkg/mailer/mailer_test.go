package mailer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// MockSender is a mock implementation of mailer.Sender.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, email *mailer.Email) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

var bob = queue.Recipient{ID: "u2", Email: "bob@example.com", Name: "Bob"}

func TestMailer_Compose(t *testing.T) {
	t.Parallel()

	m := mailer.New(&MockSender{}, mailer.Config{FromEmail: "noreply@example.com", FromName: "App", ReplyTo: "support@example.com"})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		email := m.Compose(&mailer.Rendered{Subject: "s", HTML: "<p>x</p>", Text: "x"}, bob, mailer.Tags{mailer.SequenceTag: "welcome"})
		require.Equal(t, `"App" <noreply@example.com>`, email.From)
		require.Equal(t, []string{`"Bob" <bob@example.com>`}, email.To)
		require.Equal(t, "support@example.com", email.ReplyTo)
		require.Equal(t, "welcome", email.Tags[mailer.SequenceTag])
	})

	t.Run("template overrides win", func(t *testing.T) {
		t.Parallel()

		email := m.Compose(&mailer.Rendered{
			Subject:   "s",
			HTML:      "x",
			FromName:  "Team",
			FromEmail: "team@example.com",
			ReplyTo:   "team-reply@example.com",
		}, queue.Recipient{Email: "anon@example.com"}, nil)
		require.Equal(t, `"Team" <team@example.com>`, email.From)
		require.Equal(t, []string{"anon@example.com"}, email.To)
		require.Equal(t, "team-reply@example.com", email.ReplyTo)
	})
}

func TestMailer_Send(t *testing.T) {
	t.Parallel()

	t.Run("returns provider id", func(t *testing.T) {
		t.Parallel()

		sender := &MockSender{}
		m := mailer.New(sender, mailer.Config{FromEmail: "noreply@example.com"})
		email := m.Compose(&mailer.Rendered{Subject: "Hi", HTML: "<p>Hi</p>"}, bob, nil)

		sender.On("Send", mock.Anything, mock.MatchedBy(func(e *mailer.Email) bool {
			return e.Subject == "Hi" && len(e.To) == 1
		})).Return("msg-1", nil)

		id, err := m.Send(context.Background(), email)
		require.NoError(t, err)
		require.Equal(t, "msg-1", id)
		sender.AssertExpectations(t)
	})

	t.Run("wraps transport errors", func(t *testing.T) {
		t.Parallel()

		sender := &MockSender{}
		m := mailer.New(sender, mailer.Config{FromEmail: "noreply@example.com"})
		boom := errors.New("provider down")
		sender.On("Send", mock.Anything, mock.Anything).Return("", boom)

		_, err := m.Send(context.Background(), m.Compose(&mailer.Rendered{Subject: "Hi", Text: "Hi"}, bob, nil))
		require.ErrorIs(t, err, mailer.ErrSendFailed)
		require.ErrorIs(t, err, boom)
	})

	t.Run("validates before sending", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name  string
			email *mailer.Email
			err   error
		}{
			{name: "no recipient", email: &mailer.Email{From: "a@x", Subject: "s", HTML: "h"}, err: mailer.ErrNoRecipient},
			{name: "no sender", email: &mailer.Email{To: []string{"b@x"}, Subject: "s", HTML: "h"}, err: mailer.ErrNoSender},
			{name: "no subject", email: &mailer.Email{From: "a@x", To: []string{"b@x"}, HTML: "h"}, err: mailer.ErrNoSubject},
			{name: "no content", email: &mailer.Email{From: "a@x", To: []string{"b@x"}, Subject: "s"}, err: mailer.ErrNoContent},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				sender := &MockSender{}
				_, err := mailer.New(sender, mailer.Config{}).Send(context.Background(), tt.email)
				require.ErrorIs(t, err, tt.err)
				sender.AssertNotCalled(t, "Send")
			})
		}
	})
}

func TestAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a@example.com", mailer.Address("", "a@example.com"))
	require.Equal(t, `"Ann" <a@example.com>`, mailer.Address("Ann", "a@example.com"))
}

func TestSimpleTags(t *testing.T) {
	t.Parallel()

	tags := mailer.SimpleTags("onboarding", "drip")
	require.Len(t, tags, 2)
	require.Equal(t, struct{}{}, tags["onboarding"])
}
