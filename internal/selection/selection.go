// Package selection owns the mutable set of selected nights for one listing
// or proposal edit session. All rules are delegated to internal/contiguity;
// this package only decides when to apply them.
//
// A Selection belongs to one session and is not safe for concurrent use.
package selection

import (
	"fmt"

	"leasesched/internal/contiguity"
	"leasesched/internal/model"
)

// Options are the night-count rules a selection is checked against.
// MaxNights 0 means no upper bound.
type Options struct {
	MinNights         int  `yaml:"min_nights" json:"min_nights"`
	MaxNights         int  `yaml:"max_nights" json:"max_nights"`
	RequireContiguous bool `yaml:"require_contiguous" json:"require_contiguous"`
}

// DefaultOptions matches the listing editor: at least two nights, no upper
// bound, one contiguous block.
func DefaultOptions() Options {
	return Options{MinNights: 2, MaxNights: 0, RequireContiguous: true}
}

// NoticeKind identifies an informational, non-blocking message.
type NoticeKind string

const (
	// NoticeAutoCompleted is raised when a sixth night promotes the week to seven.
	NoticeAutoCompleted NoticeKind = "auto_completed"
	// NoticeAutoFilled is raised when a second click fills the days in between.
	NoticeAutoFilled NoticeKind = "auto_filled"
)

// Notice tells the UI that an edit did more than the click implied.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Selection wraps one AvailabilitySet and applies the edit policies.
type Selection struct {
	set  model.AvailabilitySet
	opts Options
}

// New returns an empty selection with the given options.
func New(opts Options) *Selection {
	return &Selection{opts: opts}
}

// Set returns the current value.
func (s *Selection) Set() model.AvailabilitySet { return s.set }

// Options returns the rules this selection was created with.
func (s *Selection) Options() Options { return s.opts }

// Restore loads a persisted value without running edit policies.
func (s *Selection) Restore(set model.AvailabilitySet) { s.set = set }

// CheckInOut derives the boundary days of the current block.
func (s *Selection) CheckInOut() (checkIn, checkOut model.Weekday, ok bool) {
	return contiguity.DeriveCheckInOut(s.set)
}

// Toggle selects or deselects day.
//
// Deselecting fails with *BelowMinimumNightsError when it would leave fewer
// than MinNights nights, and with *ValidationError when it would split the
// block in two. Selecting a second day while exactly one is selected fills
// the days in between instead of adding a lone day. Any other selection must
// extend the block. When an add reaches six days the week is promoted to
// seven and a Notice says so. On error the selection is unchanged.
func (s *Selection) Toggle(day model.Weekday) (*Notice, error) {
	if !day.Valid() {
		return nil, fmt.Errorf("toggle: invalid weekday %d", int(day))
	}

	if s.set.Has(day) {
		return nil, s.remove(day)
	}
	return s.add(day)
}

func (s *Selection) remove(day model.Weekday) error {
	if contiguity.RemovalWouldViolateMinimum(s.set, day, s.opts.MinNights) {
		return &BelowMinimumNightsError{
			MinNights: s.opts.MinNights,
			Resulting: s.set.Without(day).Nights(),
		}
	}
	next := s.set.Without(day)
	if s.opts.RequireContiguous && !contiguity.IsContiguous(next) {
		return &ValidationError{Reason: ErrNotContiguous}
	}
	s.set = next
	return nil
}

func (s *Selection) add(day model.Weekday) (*Notice, error) {
	var notice *Notice
	var next model.AvailabilitySet

	if s.set.Len() == 1 {
		anchor := s.set.Days()[0]
		next = contiguity.AutoFillBetween(anchor, day)
		if next.Len() > 2 {
			lo, hi := anchor, day
			if lo > hi {
				lo, hi = hi, lo
			}
			notice = &Notice{
				Kind:    NoticeAutoFilled,
				Message: fmt.Sprintf("Selected %s through %s.", lo, hi),
			}
		}
	} else {
		next = s.set.With(day)
		if s.opts.RequireContiguous && !contiguity.IsContiguous(next) {
			return nil, &ValidationError{Reason: ErrNotContiguous}
		}
	}

	next, completed := AutoComplete(next)
	if completed != nil {
		notice = completed
	}

	s.set = next
	return notice, nil
}

// AutoComplete promotes a 6-day set to the full week and returns the notice
// to show when it did.
func AutoComplete(set model.AvailabilitySet) (model.AvailabilitySet, *Notice) {
	completed := contiguity.AutoCompleteToSeven(set)
	if completed.Equal(set) {
		return set, nil
	}
	return completed, &Notice{
		Kind:    NoticeAutoCompleted,
		Message: "Six nights always extend to the full week, so all seven days are now selected.",
	}
}

// SelectAll selects the full week.
func (s *Selection) SelectAll() {
	s.set = model.FullWeek()
}

// Clear empties the selection. It fails with *BelowMinimumNightsError when a
// minimum is configured and something is selected.
func (s *Selection) Clear() error {
	if s.set.IsEmpty() {
		return nil
	}
	if s.opts.MinNights > 0 {
		return &BelowMinimumNightsError{MinNights: s.opts.MinNights, Resulting: 0}
	}
	s.set = 0
	return nil
}

// Validate is the gate a selection passes before it is submitted upstream.
// It returns nil or a *ValidationError.
func (s *Selection) Validate(opts Options) error {
	return Validate(s.set, opts)
}

// Validate checks set against opts without needing a Selection.
func Validate(set model.AvailabilitySet, opts Options) error {
	if set.IsEmpty() {
		return &ValidationError{Reason: ErrEmpty}
	}
	if opts.RequireContiguous && !contiguity.IsContiguous(set) {
		return &ValidationError{Reason: ErrNotContiguous}
	}
	nights := set.Nights()
	if nights < opts.MinNights {
		return &ValidationError{Reason: ErrTooFewNights, Nights: nights, Limit: opts.MinNights}
	}
	if opts.MaxNights > 0 && nights > opts.MaxNights {
		return &ValidationError{Reason: ErrTooManyNights, Nights: nights, Limit: opts.MaxNights}
	}
	return nil
}
