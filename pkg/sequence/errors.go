package sequence

import "errors"

var (
	// ErrNoEmail indicates the recipient record has no email address.
	ErrNoEmail = errors.New("sequence: recipient has no email")

	// ErrNoSteps indicates the sequence has nothing to schedule.
	ErrNoSteps = errors.New("sequence: sequence has no steps")

	// ErrInsertFailed indicates the scheduled jobs could not be stored.
	ErrInsertFailed = errors.New("sequence: failed to insert jobs")
)
