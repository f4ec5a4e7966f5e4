package mailer

import "net/mail"

// Tags are provider tags attached to a message for analytics. Values are
// either presence-only (struct{}{}) or scalars.
type Tags map[string]any

// SimpleTags creates presence-only tags from a list of tag names.
func SimpleTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, n := range names {
		t[n] = struct{}{}
	}
	return t
}

// SequenceTag is the tag name carried by every send that belongs to a
// sequence. Its value is the sequence key.
const SequenceTag = "sequence"

// Address formats a name and email into RFC 5322 address format.
// Returns just the email when name is empty.
func Address(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

// Email is a fully prepared message handed to a Sender.
type Email struct {
	Headers map[string]string
	Tags    Tags
	From    string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	To      []string
}

// Validate reports the first missing required field.
func (e *Email) Validate() error {
	switch {
	case len(e.To) == 0:
		return ErrNoRecipient
	case e.From == "":
		return ErrNoSender
	case e.Subject == "":
		return ErrNoSubject
	case e.HTML == "" && e.Text == "":
		return ErrNoContent
	}
	return nil
}
