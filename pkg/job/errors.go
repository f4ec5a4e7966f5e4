package job

import "errors"

var (
	// ErrUnknownTask is returned when a task name has no registered handler.
	ErrUnknownTask = errors.New("job: unknown task")

	// ErrInvalidPayload is returned when a payload does not decode into the
	// task's payload type.
	ErrInvalidPayload = errors.New("job: invalid payload")

	// ErrAlreadyStarted is returned by Start on a running manager.
	ErrAlreadyStarted = errors.New("job: already started")

	// ErrNotStarted is returned by Stop on a manager that is not running.
	ErrNotStarted = errors.New("job: not started")

	// ErrPoolRequired is returned when no database pool is given.
	ErrPoolRequired = errors.New("job: pool is required")

	// ErrInvalidSchedule is returned for a malformed cron expression.
	ErrInvalidSchedule = errors.New("job: invalid schedule")

	// ErrMigrationFailed is returned when River's schema migration fails.
	ErrMigrationFailed = errors.New("job: migration failed")
)
