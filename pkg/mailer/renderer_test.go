package mailer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/pkg/mailer"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/memory"
)

func newRenderer(t *testing.T, templates ...queue.Template) *mailer.Renderer {
	t.Helper()

	store := memory.New()
	for _, tpl := range templates {
		store.PutTemplate(tpl)
	}
	return mailer.NewRenderer(store)
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	ada := queue.Recipient{ID: "u1", Email: "ada@example.com", Name: "Ada"}

	t.Run("renders body with variables", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "welcome",
			Subject: "Welcome, {{recipientName}}",
			Body:    queue.Content{Rich: "Hello **{{recipientName}}**, you have {{count}} tasks."},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "welcome", queue.Vars{"count": queue.Int(2)}, ada)
		require.NoError(t, err)

		assert.Equal(t, "welcome", out.TemplateKey)
		assert.NotEmpty(t, out.TemplateID)
		assert.Equal(t, "Welcome, Ada", out.Subject)
		assert.Equal(t, "<p>Hello <strong>Ada</strong>, you have 2 tasks.</p>", out.HTML)
		assert.Equal(t, "Hello Ada, you have 2 tasks.", out.Text)
	})

	t.Run("recipient values win over caller vars", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "{{recipientEmail}}",
			Body:    queue.Content{Rich: "x"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", queue.Vars{"recipientEmail": queue.String("spoof@example.com")}, ada)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", out.Subject)
	})

	t.Run("wraps body with header and footer before substitution", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "s",
			Header:  queue.Content{Rich: "Hi {{recipientName}}"},
			Body:    queue.Content{Rich: "Body"},
			Footer:  queue.Content{Rich: "Sent to {{recipientEmail}}"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.Equal(t, "<p>Hi Ada</p>\n<p>Body</p>\n<p>Sent to ada@example.com</p>", out.HTML)
		assert.Equal(t, "Hi Ada\n\nBody\n\nSent to ada@example.com", out.Text)
	})

	t.Run("prefers explicit plain text", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "s",
			Body:    queue.Content{Rich: "# Title", Text: "Plain {{recipientName}}"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.Equal(t, "<h1>Title</h1>", out.HTML)
		assert.Equal(t, "Plain Ada", out.Text)
	})

	t.Run("leaves unresolved tokens", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "Hi {{ nickname }}",
			Body:    queue.Content{Rich: "x"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.Equal(t, "Hi {{ nickname }}", out.Subject)
	})

	t.Run("escapes variable values in html", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "s",
			Body:    queue.Content{Rich: "Hi {{who}}"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", queue.Vars{"who": queue.String("<script>x</script>")}, ada)
		require.NoError(t, err)
		assert.NotContains(t, out.HTML, "<script>")
		assert.Contains(t, out.Text, "<script>x</script>")
	})

	t.Run("sanitizes raw html in content", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "s",
			Body:    queue.Content{Rich: "Hello <script>alert(1)</script>"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.NotContains(t, out.HTML, "<script")
	})

	t.Run("renders buttons", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:     "k",
			Subject: "s",
			Body:    queue.Content{Rich: "[!button|Verify](https://example.com/verify)"},
			Active:  true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.Contains(t, out.HTML, `class="btn"`)
		assert.Contains(t, out.HTML, `href="https://example.com/verify"`)
		assert.Equal(t, "Verify", out.Text)
	})

	t.Run("carries sender overrides", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{
			Key:       "k",
			Subject:   "s",
			Body:      queue.Content{Rich: "x"},
			FromName:  "Team",
			FromEmail: "team@example.com",
			ReplyTo:   "help@example.com",
			Active:    true,
		})

		out, err := r.Render(context.Background(), "k", nil, ada)
		require.NoError(t, err)
		assert.Equal(t, "Team", out.FromName)
		assert.Equal(t, "team@example.com", out.FromEmail)
		assert.Equal(t, "help@example.com", out.ReplyTo)
	})

	t.Run("fails for missing template", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t)
		_, err := r.Render(context.Background(), "missing", nil, ada)
		require.ErrorIs(t, err, queue.ErrTemplateNotFound)
	})

	t.Run("fails for inactive template", func(t *testing.T) {
		t.Parallel()

		r := newRenderer(t, queue.Template{Key: "off", Subject: "s", Body: queue.Content{Rich: "x"}})
		_, err := r.Render(context.Background(), "off", nil, ada)
		require.ErrorIs(t, err, queue.ErrTemplateNotFound)
	})
}
