package mailer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
)

func convert(t *testing.T, src string) string {
	t.Helper()

	md := goldmark.New(goldmark.WithExtensions(buttonExtension{}))
	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte(src), &buf))
	return buf.String()
}

func TestButtonExtension(t *testing.T) {
	t.Parallel()

	t.Run("renders button", func(t *testing.T) {
		t.Parallel()
		require.Contains(t, convert(t, `[!button|Click Me](https://example.com)`),
			`<a href="https://example.com" class="btn">Click Me</a>`)
	})

	t.Run("escapes label and url", func(t *testing.T) {
		t.Parallel()

		out := convert(t, `[!button|<b>x</b>](https://example.com/?a="b")`)
		require.NotContains(t, out, "<b>")
		require.Contains(t, out, "&lt;b&gt;")
		require.Contains(t, out, "&quot;b&quot;")
	})

	t.Run("keeps template tokens in url", func(t *testing.T) {
		t.Parallel()
		require.Contains(t, convert(t, `[!button|Verify](https://example.com/v?t={{token}})`),
			`href="https://example.com/v?t={{token}}"`)
	})

	t.Run("leaves regular links alone", func(t *testing.T) {
		t.Parallel()

		out := convert(t, `[docs](https://example.com/docs)`)
		require.Contains(t, out, `<a href="https://example.com/docs">docs</a>`)
		require.NotContains(t, out, "btn")
	})

	t.Run("ignores incomplete syntax", func(t *testing.T) {
		t.Parallel()
		require.NotContains(t, convert(t, `[!button|Broken](https://example.com`), "btn")
	})

	t.Run("works inside surrounding markdown", func(t *testing.T) {
		t.Parallel()

		out := convert(t, "# Welcome\n\nPlease verify:\n\n[!button|Verify Email](https://example.com/verify)\n\nThanks!")
		require.Contains(t, out, "<h1>Welcome</h1>")
		require.Contains(t, out, `class="btn">Verify Email</a>`)
		require.Contains(t, out, "<p>Thanks!</p>")
	})
}
