package selection

import (
	"errors"
	"fmt"
)

// Reasons carried by ValidationError. Compare with errors.Is.
var (
	ErrEmpty         = errors.New("no nights selected")
	ErrNotContiguous = errors.New("selected nights must form one contiguous block")
	ErrTooFewNights  = errors.New("fewer nights than the minimum")
	ErrTooManyNights = errors.New("more nights than the maximum")
)

// ValidationError means the selection breaks a contiguity or night-count
// rule. The user has to adjust the input.
type ValidationError struct {
	Reason error
	Nights int
	Limit  int
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrTooFewNights), errors.Is(e.Reason, ErrTooManyNights):
		return fmt.Sprintf("invalid selection: %v (%d nights, limit %d)", e.Reason, e.Nights, e.Limit)
	default:
		return fmt.Sprintf("invalid selection: %v", e.Reason)
	}
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// BelowMinimumNightsError rejects an edit that would leave fewer nights than
// the configured minimum. The selection is left unchanged.
type BelowMinimumNightsError struct {
	MinNights int
	Resulting int
}

func (e *BelowMinimumNightsError) Error() string {
	return fmt.Sprintf("edit would leave %d nights, minimum is %d", e.Resulting, e.MinNights)
}
