package indexing

import "errors"

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRunning rejects a bulk start while a job holds the run slot.
	ErrAlreadyRunning = errors.New("indexing already running")
	// ErrQueueFull rejects a submission while the execution queue is at capacity.
	ErrQueueFull = errors.New("indexing queue is full")
	// ErrNoCredentials means neither a stored nor an inline credential exists.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrExternalProgram wraps failures to start or run the indexing program.
	ErrExternalProgram = errors.New("external program error")
	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("storage error")
	// ErrTerminal rejects transitions out of completed or failed.
	ErrTerminal = errors.New("job already finished")
)
