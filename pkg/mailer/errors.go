package mailer

import "errors"

var (
	ErrNoRecipient = errors.New("mailer: email must have at least one recipient")
	ErrNoSender    = errors.New("mailer: email must have a from address")
	ErrNoSubject   = errors.New("mailer: email must have a subject")
	ErrNoContent   = errors.New("mailer: email must have HTML or text content")

	// ErrRenderFailed wraps markdown conversion errors.
	ErrRenderFailed = errors.New("mailer: failed to render template")

	// ErrSendFailed wraps transport errors.
	ErrSendFailed = errors.New("mailer: failed to send email")
)
