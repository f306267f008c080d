package orchestrator

import "errors"

var (
	// ErrInvalidConfig is returned for out-of-range thread counts or batch sizes
	ErrInvalidConfig = errors.New("invalid job configuration")

	// ErrAlreadyStarted is returned when a job is configured or started after Start
	ErrAlreadyStarted = errors.New("job already started")

	// ErrNotStarted is returned when waiting on a job that was never started
	ErrNotStarted = errors.New("job not started")

	// ErrNoInput is returned by Start when no source has been added
	ErrNoInput = errors.New("job has no input source")

	// ErrNoClient is returned by Start when no document client can be resolved
	ErrNoClient = errors.New("job has no document client")

	// ErrTerminalOutcome is returned when marking an item that already succeeded or failed
	ErrTerminalOutcome = errors.New("outcome already terminal")

	// ErrUnknownItem is returned when marking an item that was never registered
	ErrUnknownItem = errors.New("unknown work item")
)
