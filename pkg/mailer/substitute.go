package mailer

import (
	"html"
	"regexp"
	"strings"
)

// tokenRe matches {{name}} with optional inner whitespace, and the
// percent-encoded form goldmark produces inside link destinations.
var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}|%7B%7B([A-Za-z0-9_.-]+)%7D%7D`)

// Lookup resolves a variable by name.
type Lookup func(name string) (string, bool)

// Substitute replaces every token whose name resolves. Unresolved tokens
// are left verbatim.
func Substitute(s string, lookup Lookup) string {
	return substitute(s, lookup, nil)
}

// SubstituteHTML is Substitute with values HTML-escaped.
func SubstituteHTML(s string, lookup Lookup) string {
	return substitute(s, lookup, html.EscapeString)
}

func substitute(s string, lookup Lookup, escape func(string) string) string {
	if !strings.Contains(s, "{{") && !strings.Contains(s, "%7B%7B") {
		return s
	}
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		v, ok := lookup(name)
		if !ok {
			return tok
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}
