package retry

import "errors"

// Retry errors.
var (
	// ErrAttemptsExhausted wraps the last error once every attempt failed.
	ErrAttemptsExhausted = errors.New("retry attempts exhausted")

	// ErrPermanent marks an error that must not be retried. Wrap with Permanent.
	ErrPermanent = errors.New("permanent failure")
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent wraps err so Do stops retrying and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
