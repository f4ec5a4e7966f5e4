// Package sanitizer cleans rendered email HTML and derives the plain-text
// alternative from it.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy *bluemonday.Policy
	emailPolicy  *bluemonday.Policy
	initOnce     sync.Once
)

func initPolicies() {
	initOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()

		// Formatting that mail clients render reliably. No scripts, forms,
		// styles or event handlers.
		emailPolicy = bluemonday.NewPolicy()
		emailPolicy.AllowStandardURLs()
		emailPolicy.AllowElements(
			"p", "br", "hr",
			"h1", "h2", "h3", "h4",
			"strong", "b", "em", "i", "u",
			"ul", "ol", "li",
			"code", "pre", "blockquote",
			"table", "thead", "tbody", "tr", "th", "td",
		)
		emailPolicy.AllowAttrs("href", "title").OnElements("a")
		emailPolicy.AllowAttrs("class").Matching(regexp.MustCompile(`^btn$`)).OnElements("a")
		emailPolicy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
		emailPolicy.RequireNoFollowOnLinks(true)
	})
}

// SanitizeHTML keeps email-safe formatting tags and links and drops
// everything else, including scripts, event handlers and javascript: URLs.
func SanitizeHTML(s string) string {
	initPolicies()
	return emailPolicy.Sanitize(s)
}

var (
	blockEnd   = regexp.MustCompile(`(?i)</(p|h[1-6]|blockquote|pre|table|div)>|<hr\s*/?>`)
	lineEnd    = regexp.MustCompile(`(?i)</(li|tr)>|<br\s*/?>`)
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// StripHTML removes all markup and returns readable plain text. Block
// elements become line breaks and entities are decoded.
func StripHTML(s string) string {
	initPolicies()

	s = blockEnd.ReplaceAllString(s, "$0\n\n")
	s = lineEnd.ReplaceAllString(s, "$0\n")
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	s = spaceRun.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
