package negotiation

import (
	"errors"
	"fmt"
	"time"

	"leasesched/internal/model"
)

var (
	// ErrPartyRequired is returned when a transition needs a party identifier.
	ErrPartyRequired = errors.New("party identifier is required")
	// ErrProposalRequired is returned when a negotiation has no proposal ID.
	ErrProposalRequired = errors.New("proposal ID is required")
)

// InvalidTransitionError means the caller invoked an operation that is not
// valid from the current state. It points at a caller bug and should be
// logged and surfaced.
type InvalidTransitionError struct {
	Op   Action
	From State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s meeting in state %s", e.Op, e.From)
}

// InvalidCandidateCountError means the wrong number of candidate slots was offered.
type InvalidCandidateCountError struct {
	Got int
	Min int
	Max int
}

func (e *InvalidCandidateCountError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("expected exactly %d candidate slots, got %d", e.Min, e.Got)
	}
	return fmt.Sprintf("expected %d to %d candidate slots, got %d", e.Min, e.Max, e.Got)
}

// PastSlotError means a slot is already in the past relative to the caller's now.
type PastSlotError struct {
	Slot model.Slot
	Now  time.Time
}

func (e *PastSlotError) Error() string {
	return fmt.Sprintf("slot %s is in the past (now %s)", e.Slot, e.Now.Format(time.RFC3339))
}

// InvalidSlotError means a slot is malformed, duplicated, or not one of the
// offered candidates.
type InvalidSlotError struct {
	Slot   model.Slot
	Reason string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("invalid slot %s: %s", e.Slot, e.Reason)
}
