package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose key already exists
	ErrJobExists = errors.New("job already exists")

	// ErrVersionConflict is returned by a conditional update when the record
	// changed since it was read
	ErrVersionConflict = errors.New("job version conflict")

	// ErrInvalidMessage is returned when a queue payload cannot be decoded
	ErrInvalidMessage = errors.New("invalid message payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
