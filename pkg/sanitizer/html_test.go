package sanitizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/mailqueue/pkg/sanitizer"
)

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips script injection",
			input:    `<p>Hello</p><script>alert('xss')</script>`,
			expected: "Hello",
		},
		{
			name:     "strips inline tags",
			input:    `<p>Hello <strong>world</strong></p>`,
			expected: "Hello world",
		},
		{
			name:     "separates paragraphs with a blank line",
			input:    `<p>One</p><p>Two</p>`,
			expected: "One\n\nTwo",
		},
		{
			name:     "puts list items on their own lines",
			input:    `<ul><li>first</li><li>second</li></ul>`,
			expected: "first\nsecond",
		},
		{
			name:     "turns line breaks into newlines",
			input:    `line1<br>line2`,
			expected: "line1\nline2",
		},
		{
			name:     "keeps link text",
			input:    `<a href="javascript:alert('xss')">click</a>`,
			expected: "click",
		},
		{
			name:     "decodes entities",
			input:    `<p>Tom &amp; Jerry&#39;s</p>`,
			expected: "Tom & Jerry's",
		},
		{
			name:     "keeps template tokens",
			input:    `<p>Hi {{name}}</p>`,
			expected: "Hi {{name}}",
		},
		{
			name:     "handles plain text",
			input:    "normal text without HTML",
			expected: "normal text without HTML",
		},
		{
			name:     "handles empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.StripHTML(tt.input))
		})
	}
}

func TestSanitizeHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips script injection but keeps safe tags",
			input:    `<p>Hello</p><script>alert('xss')</script>`,
			expected: "<p>Hello</p>",
		},
		{
			name:     "allows basic formatting",
			input:    `<p>Hello <strong>world</strong></p>`,
			expected: "<p>Hello <strong>world</strong></p>",
		},
		{
			name:     "allows headings",
			input:    `<h1>Welcome</h1>`,
			expected: "<h1>Welcome</h1>",
		},
		{
			name:     "allows lists",
			input:    `<ul><li>item 1</li><li>item 2</li></ul>`,
			expected: "<ul><li>item 1</li><li>item 2</li></ul>",
		},
		{
			name:     "allows safe links with nofollow",
			input:    `<a href="https://example.com">link</a>`,
			expected: `<a href="https://example.com" rel="nofollow">link</a>`,
		},
		{
			name:     "keeps button class on links",
			input:    `<a href="https://example.com" class="btn">Go</a>`,
			expected: `<a href="https://example.com" class="btn" rel="nofollow">Go</a>`,
		},
		{
			name:     "drops other classes",
			input:    `<a href="https://example.com" class="evil">Go</a>`,
			expected: `<a href="https://example.com" rel="nofollow">Go</a>`,
		},
		{
			name:     "strips javascript URLs from links",
			input:    `<a href="javascript:alert('xss')">click</a>`,
			expected: "click",
		},
		{
			name:     "strips event handlers",
			input:    `<p onclick="alert('xss')">content</p>`,
			expected: "<p>content</p>",
		},
		{
			name:     "strips style attribute",
			input:    `<p style="color:red">content</p>`,
			expected: "<p>content</p>",
		},
		{
			name:     "strips div tags",
			input:    `<div>content</div>`,
			expected: "content",
		},
		{
			name:     "allows line breaks",
			input:    `line1<br>line2`,
			expected: `line1<br>line2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizer.SanitizeHTML(tt.input))
		})
	}
}

func TestSanitizeHTML_RenderedEmail(t *testing.T) {
	t.Parallel()

	in := `<h1>Welcome</h1>` +
		`<img src="https://cdn.example.com/logo.png" alt="logo" onerror="steal()">` +
		`<form action="https://evil.example"><input name="card"></form>` +
		`<iframe src="https://evil.example"></iframe>` +
		`<p>Questions? <a href="data:text/html,boom">reply</a></p>`

	out := sanitizer.SanitizeHTML(in)
	assert.Contains(t, out, `src="https://cdn.example.com/logo.png"`)
	assert.Contains(t, out, "<p>Questions? reply</p>")
	for _, banned := range []string{"onerror", "<form", "<input", "<iframe", "data:"} {
		assert.NotContains(t, out, banned)
	}
}
