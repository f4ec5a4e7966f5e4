package queue

import "errors"

var (
	// ErrJobNotFound indicates no job exists with the given id.
	ErrJobNotFound = errors.New("queue: job not found")

	// ErrNotCancellable indicates the job is no longer in the scheduled state.
	ErrNotCancellable = errors.New("queue: only scheduled jobs can be cancelled")

	// ErrTemplateNotFound indicates no active template matches the key.
	ErrTemplateNotFound = errors.New("queue: template not found")

	// ErrSequenceNotFound indicates no active sequence matches the key.
	ErrSequenceNotFound = errors.New("queue: sequence not found")

	// ErrRecipientNotFound indicates the recipient id is unknown.
	ErrRecipientNotFound = errors.New("queue: recipient not found")

	// ErrInvalidVariable indicates a template variable is not a scalar.
	ErrInvalidVariable = errors.New("queue: invalid template variable")

	// ErrInvalidDelayUnit indicates an unknown sequence step delay unit.
	ErrInvalidDelayUnit = errors.New("queue: invalid delay unit")
)
