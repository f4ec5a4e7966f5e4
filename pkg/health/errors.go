package health

import "errors"

var (
	// ErrCheckFailed is returned when a check reports a problem.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is returned when a check does not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")
)
