package queue

import (
	"fmt"
	"strings"
	"time"
)

// Content is a rich-content block with an optional plain-text rendition.
// Rich content is Markdown; the renderer converts it to HTML.
type Content struct {
	Rich string `json:"rich" yaml:"rich"`
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Empty reports whether the block carries no content.
func (c Content) Empty() bool {
	return strings.TrimSpace(c.Rich) == "" && strings.TrimSpace(c.Text) == ""
}

// Template is a stored email template looked up by its unique key.
type Template struct {
	UpdatedAt time.Time `json:"updated_at"`
	Body      Content   `json:"body"`
	Header    Content   `json:"header"`
	Footer    Content   `json:"footer"`
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Subject   string    `json:"subject"`
	FromName  string    `json:"from_name,omitempty"`
	FromEmail string    `json:"from_email,omitempty"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Active    bool      `json:"active"`
}

// DelayUnit is the unit of a sequence step delay.
type DelayUnit string

const (
	Minutes DelayUnit = "minutes"
	Hours   DelayUnit = "hours"
	Days    DelayUnit = "days"
	Weeks   DelayUnit = "weeks"
)

// Duration returns the length of one unit. Unknown units have zero length.
func (u DelayUnit) Duration() time.Duration {
	switch u {
	case Minutes:
		return time.Minute
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	case Weeks:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Valid reports whether u is a known unit.
func (u DelayUnit) Valid() bool { return u.Duration() > 0 }

// ParseDelayUnit parses a unit name, accepting singular forms.
func ParseDelayUnit(s string) (DelayUnit, error) {
	u := DelayUnit(strings.ToLower(strings.TrimSpace(s)))
	if !strings.HasSuffix(string(u), "s") {
		u += "s"
	}
	if !u.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDelayUnit, s)
	}
	return u, nil
}

// Delay converts a relative step delay into a duration.
// An unknown unit yields zero so the step fires immediately.
func Delay(value int, unit DelayUnit) time.Duration {
	return time.Duration(value) * unit.Duration()
}

// Step is one template of a sequence with its delay from trigger time.
type Step struct {
	TemplateID  string    `json:"template_id"`
	TemplateKey string    `json:"template_key"`
	DelayUnit   DelayUnit `json:"delay_unit"`
	DelayValue  int       `json:"delay_value"`
}

// Delay returns the offset of the step from the trigger time.
func (s Step) Delay() time.Duration { return Delay(s.DelayValue, s.DelayUnit) }

// Sequence is an ordered set of templates with relative delays.
type Sequence struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Steps  []Step `json:"steps"`
	Active bool   `json:"active"`
}

// LogEntry is an append-only record of a successful send.
type LogEntry struct {
	SentAt            time.Time `json:"sent_at"`
	ID                string    `json:"id"`
	JobID             string    `json:"job_id"`
	RecipientID       string    `json:"recipient_id"`
	RecipientEmail    string    `json:"recipient_email"`
	TemplateID        string    `json:"template_id"`
	TemplateKey       string    `json:"template_key"`
	Subject           string    `json:"subject"`
	Status            Status    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id"`
}
