package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/sanitizer"
)

// Variables the renderer always injects from the recipient.
const (
	VarRecipientEmail = "recipientEmail"
	VarRecipientName  = "recipientName"
)

// Rendered is a template resolved and substituted for one recipient.
type Rendered struct {
	TemplateID  string
	TemplateKey string
	Subject     string
	HTML        string
	Text        string
	FromName    string
	FromEmail   string
	ReplyTo     string
}

// Renderer resolves active templates by key and renders them into HTML and
// plain text for a recipient.
type Renderer struct {
	templates queue.TemplateStore
	md        goldmark.Markdown
}

// NewRenderer creates a renderer over the template store.
func NewRenderer(templates queue.TemplateStore) *Renderer {
	return &Renderer{
		templates: templates,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, buttonExtension{}),
		),
	}
}

// Render looks up the active template with key and renders it.
//
// Header, body and footer are converted from Markdown and sanitized, then
// joined in that order before {{name}} substitution runs over the combined
// HTML, the subject and the plain text. Recipient email and name are always
// available as recipientEmail and recipientName and win over caller vars of
// the same name. Tokens with no value are left as is.
func (r *Renderer) Render(ctx context.Context, key string, vars queue.Vars, to queue.Recipient) (*Rendered, error) {
	tpl, err := r.templates.ActiveTemplateByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	blocks := []queue.Content{tpl.Header, tpl.Body, tpl.Footer}
	htmlParts := make([]string, 0, len(blocks))
	textParts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Empty() {
			continue
		}
		h, t, err := r.renderBlock(b)
		if err != nil {
			return nil, errors.Join(ErrRenderFailed, err)
		}
		htmlParts = append(htmlParts, h)
		textParts = append(textParts, t)
	}

	lookup := lookupFor(vars, to)

	return &Rendered{
		TemplateID:  tpl.ID,
		TemplateKey: tpl.Key,
		Subject:     Substitute(tpl.Subject, lookup),
		HTML:        SubstituteHTML(strings.Join(htmlParts, "\n"), lookup),
		Text:        Substitute(strings.Join(textParts, "\n\n"), lookup),
		FromName:    tpl.FromName,
		FromEmail:   tpl.FromEmail,
		ReplyTo:     tpl.ReplyTo,
	}, nil
}

// renderBlock converts one content block. Rich content is Markdown; a block
// with only text is rendered from its text.
func (r *Renderer) renderBlock(c queue.Content) (string, string, error) {
	src := c.Rich
	if strings.TrimSpace(src) == "" {
		src = c.Text
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", "", err
	}
	htmlOut := strings.TrimSpace(sanitizer.SanitizeHTML(buf.String()))

	text := strings.TrimSpace(c.Text)
	if text == "" {
		text = sanitizer.StripHTML(htmlOut)
	}
	return htmlOut, text, nil
}

func lookupFor(vars queue.Vars, to queue.Recipient) Lookup {
	merged := vars.Merge(queue.Vars{
		VarRecipientEmail: queue.String(to.Email),
		VarRecipientName:  queue.String(to.Name),
	})
	return merged.Lookup
}
