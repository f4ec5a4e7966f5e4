// Package seed loads template and sequence definitions from a file tree and
// writes them to a catalog store.
//
// Layout:
//
//	templates/welcome.md        Markdown body with YAML front matter
//	sequences/onboarding.yaml   sequence definition
//
// A template file:
//
//	---
//	subject: Welcome, {{recipientName}}
//	from_name: Acme
//	text: Plain text fallback
//	footer:
//	  rich: "[Unsubscribe]({{unsubscribeUrl}})"
//	---
//	# Hello {{recipientName}}
//
//	[!button|Get started](https://example.com/start)
//
// The template key defaults to the file name without extension.
//
// A sequence file:
//
//	key: onboarding
//	name: Onboarding
//	steps:
//	  - template: welcome
//	  - template: tips
//	    delay: 2
//	    unit: days
//
// Load parses everything up front so a broken file never leaves a half
// seeded catalog; Apply then upserts templates before sequences.
package seed
