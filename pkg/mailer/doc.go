// Package mailer renders stored templates and delivers them through a
// pluggable transport.
//
// A [Renderer] resolves the active template for a key from a
// queue.TemplateStore, converts its Markdown blocks to sanitized HTML with
// goldmark, derives plain text and substitutes {{name}} tokens. A [Mailer]
// composes the [Email] from the rendered result and the configured sender
// defaults and passes it to a [Sender].
//
// Transports live in subpackages: resend for the Resend API and smtp for
// any SMTP relay.
//
//	renderer := mailer.NewRenderer(store)
//	m := mailer.New(resend.New(cfg.Resend), cfg.Mailer)
//
//	r, err := renderer.Render(ctx, "welcome", vars, recipient)
//	if err != nil {
//		return err
//	}
//	id, err := m.Send(ctx, m.Compose(r, recipient, nil))
//
// Template Markdown may contain call-to-action buttons written as
// [!button|Label](https://example.com), rendered as <a class="btn">.
package mailer
