package dispatch

import "errors"

var (
	// ErrPanic wraps a panic recovered while processing one job.
	ErrPanic = errors.New("dispatch: panic while processing job")

	// ErrClaimFailed wraps store errors while claiming a page of jobs.
	ErrClaimFailed = errors.New("dispatch: failed to claim jobs")

	ErrRateLimit        = errors.New("dispatch: rate limiter wait failed")
	ErrNoRecipient      = errors.New("dispatch: recipient email is required")
	ErrInvalidRetention = errors.New("dispatch: days to keep must not be negative")
)
