package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AvailabilitySet is the set of nights a listing or proposal is active,
// stored as a 7-bit mask indexed by Weekday.
//
// An empty set means "undetermined" and a full set means "always available".
// The contiguity rules for everything in between live in internal/contiguity;
// this type only knows set arithmetic.
type AvailabilitySet uint8

const fullMask AvailabilitySet = 1<<DaysPerWeek - 1

// NewAvailabilitySet builds a set from the given days. Invalid days are ignored.
func NewAvailabilitySet(days ...Weekday) AvailabilitySet {
	var s AvailabilitySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// FullWeek returns the set containing all seven days.
func FullWeek() AvailabilitySet { return fullMask }

// Has reports whether d is in the set.
func (s AvailabilitySet) Has(d Weekday) bool {
	return d.Valid() && s&(1<<uint(d)) != 0
}

// With returns a copy of s that includes d.
func (s AvailabilitySet) With(d Weekday) AvailabilitySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<uint(d)
}

// Without returns a copy of s that excludes d.
func (s AvailabilitySet) Without(d Weekday) AvailabilitySet {
	if !d.Valid() {
		return s
	}
	return s &^ (1 << uint(d))
}

// Union returns the days in either set.
func (s AvailabilitySet) Union(o AvailabilitySet) AvailabilitySet { return (s | o) & fullMask }

// Complement returns the unselected days.
func (s AvailabilitySet) Complement() AvailabilitySet { return ^s & fullMask }

// Len returns the number of selected days.
func (s AvailabilitySet) Len() int {
	n := 0
	for m := s & fullMask; m != 0; m &= m - 1 {
		n++
	}
	return n
}

func (s AvailabilitySet) IsEmpty() bool { return s&fullMask == 0 }

func (s AvailabilitySet) IsFull() bool { return s&fullMask == fullMask }

func (s AvailabilitySet) Equal(o AvailabilitySet) bool { return s&fullMask == o&fullMask }

// Days returns the selected days in ascending index order.
func (s AvailabilitySet) Days() []Weekday {
	out := make([]Weekday, 0, DaysPerWeek)
	for d := Sunday; d <= Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Indices returns the selected day indices in ascending order.
func (s AvailabilitySet) Indices() []int {
	days := s.Days()
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = d.Index()
	}
	return out
}

// Nights counts occupied nights. A partial week of N days spans N-1 nights
// because the trailing day is the check-out boundary; a full week is 7.
func (s AvailabilitySet) Nights() int {
	switch n := s.Len(); {
	case n == 0:
		return 0
	case n == DaysPerWeek:
		return DaysPerWeek
	default:
		return n - 1
	}
}

func (s AvailabilitySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.Short()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (s AvailabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Indices())
}

func (s *AvailabilitySet) UnmarshalJSON(data []byte) error {
	var idx []int
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	var out AvailabilitySet
	for _, i := range idx {
		d := Weekday(i)
		if !d.Valid() {
			return fmt.Errorf("availability set: day index %d out of range", i)
		}
		out = out.With(d)
	}
	*s = out
	return nil
}
