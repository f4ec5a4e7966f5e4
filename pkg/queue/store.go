package queue

import (
	"context"
	"time"
)

// JobStore persists email jobs.
//
// Every method is safe to call repeatedly: status writes only apply to rows
// in the expected source state, so replays never corrupt attempt counts.
type JobStore interface {
	// FindDue returns scheduled jobs with scheduled_for <= now and
	// attempts < maxAttempts, oldest first.
	FindDue(ctx context.Context, limit, offset, maxAttempts int) ([]EmailJob, error)

	// Claim moves the given jobs from scheduled to processing and returns the
	// ids it actually claimed. A job another run claimed first is omitted.
	Claim(ctx context.Context, ids []string) ([]string, error)

	// ClaimDue selects up to limit due jobs and claims them in one atomic step.
	// The returned jobs are already in the processing state.
	ClaimDue(ctx context.Context, limit, maxAttempts int) ([]EmailJob, error)

	// Unclaim returns processing jobs to scheduled without touching their
	// attempt counters. Used for jobs a run claimed but never started.
	Unclaim(ctx context.Context, ids []string) (int, error)

	// ApplySuccess marks a processing job as sent.
	ApplySuccess(ctx context.Context, id string) error

	// ApplyFailure marks a processing job as failed, stores the error and
	// increments its attempt counter.
	ApplyFailure(ctx context.Context, id string, errMsg string) error

	// CountActiveForRecipientSequence counts scheduled or processing jobs of
	// the sequence addressed to the recipient.
	CountActiveForRecipientSequence(ctx context.Context, recipientID, sequenceID string) (int, error)

	// ActiveRecipientsForSequence reports which of the given recipients hold
	// a scheduled or processing job of the sequence.
	ActiveRecipientsForSequence(ctx context.Context, sequenceID string, recipientIDs []string) (map[string]bool, error)

	// Insert stores a single job and assigns its id when empty.
	Insert(ctx context.Context, job *EmailJob) error

	// InsertMany stores jobs in bulk and assigns ids when empty.
	InsertMany(ctx context.Context, jobs []*EmailJob) error

	// Get returns a job by id.
	Get(ctx context.Context, id string) (*EmailJob, error)

	// Cancel moves a scheduled job to cancelled.
	Cancel(ctx context.Context, id string) error

	// CountByStatus counts jobs in the given status.
	CountByStatus(ctx context.Context, status Status) (int, error)

	// CountRetryable counts failed jobs with attempts < maxAttempts.
	CountRetryable(ctx context.Context, maxAttempts int) (int, error)

	// RequeueFailed moves up to limit retryable failed jobs back to scheduled
	// with scheduled_for = now and returns their ids.
	RequeueFailed(ctx context.Context, limit, maxAttempts int) ([]string, error)

	// ReleaseStale moves jobs stuck in processing since before cutoff back to
	// scheduled and returns how many were released.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)

	// FindTerminalOlderThan returns ids of sent or cancelled jobs last updated
	// before cutoff.
	FindTerminalOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// Delete removes a sent or cancelled job. Other states are left untouched
	// and reported as ErrJobNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteTerminalOlderThan bulk-deletes sent or cancelled jobs last
	// updated before cutoff.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// TemplateStore resolves templates by key.
type TemplateStore interface {
	// ActiveTemplateByKey returns the active template with the key or
	// ErrTemplateNotFound.
	ActiveTemplateByKey(ctx context.Context, key string) (*Template, error)
}

// SequenceStore resolves sequences by key.
type SequenceStore interface {
	// ActiveSequenceByKey returns the active sequence with the key or
	// ErrSequenceNotFound. Steps are ordered.
	ActiveSequenceByKey(ctx context.Context, key string) (*Sequence, error)
}

// RecipientStore resolves recipients by id.
type RecipientStore interface {
	// Recipient returns one recipient or ErrRecipientNotFound.
	Recipient(ctx context.Context, id string) (*Recipient, error)

	// Recipients returns the known recipients among ids keyed by id.
	// Unknown ids are absent from the result.
	Recipients(ctx context.Context, ids []string) (map[string]Recipient, error)
}

// LogSink receives an append-only record for every successful send.
type LogSink interface {
	Append(ctx context.Context, entry LogEntry) error
}

// LogSinkFunc adapts a function to LogSink.
type LogSinkFunc func(ctx context.Context, entry LogEntry) error

// Append implements LogSink.
func (f LogSinkFunc) Append(ctx context.Context, entry LogEntry) error { return f(ctx, entry) }
