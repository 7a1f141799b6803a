// Package contiguity validates and reshapes weekly availability sets.
//
// A valid selection is a single block of consecutive nights that may wrap
// past Saturday into Sunday. Every function here is pure: it takes a set
// and returns a new one, so the package is safe for concurrent use.
package contiguity

import "leasesched/internal/model"

// IsContiguous reports whether s is one block of consecutive days,
// allowing the block to wrap from Saturday to Sunday.
//
// Sets of size 0, 1, 6 and 7 are always contiguous. Otherwise either the
// selected days are numerically consecutive, or the unselected days are,
// which is the same as the selection wrapping around the week:
// {Fri,Sat,Sun,Mon,Tue} is 5,6,0,1,2 but its complement {Wed,Thu} is a run.
func IsContiguous(s model.AvailabilitySet) bool {
	n := s.Len()
	if n <= 1 || n >= 6 {
		return true
	}
	return consecutive(s) || consecutive(s.Complement())
}

// consecutive reports whether the sorted indices of s have no gaps.
func consecutive(s model.AvailabilitySet) bool {
	days := s.Days()
	for i := 1; i < len(days); i++ {
		if days[i] != days[i-1]+1 {
			return false
		}
	}
	return true
}

// AutoFillBetween returns the inclusive run between the single previously
// selected day and a newly clicked one, walking forward when target is at
// or after anchor and backward otherwise.
func AutoFillBetween(anchor, target model.Weekday) model.AvailabilitySet {
	var s model.AvailabilitySet
	if !anchor.Valid() || !target.Valid() {
		return s
	}
	if target >= anchor {
		for d := anchor; d <= target; d++ {
			s = s.With(d)
		}
		return s
	}
	for d := anchor; d >= target; d-- {
		s = s.With(d)
	}
	return s
}

// AutoCompleteToSeven promotes a 6-day selection to the full week. A 6-night
// week is never a stable end state; any other size is returned unchanged.
func AutoCompleteToSeven(s model.AvailabilitySet) model.AvailabilitySet {
	if s.Len() == 6 {
		return model.FullWeek()
	}
	return s
}

// DeriveCheckInOut returns the first day of the block and the day right
// after its last day. When the block wraps, check-in is the first day after
// the gap rather than the smallest index. The full week checks in and out
// on Sunday. ok is false for empty or non-contiguous sets.
func DeriveCheckInOut(s model.AvailabilitySet) (checkIn, checkOut model.Weekday, ok bool) {
	if s.IsEmpty() || !IsContiguous(s) {
		return 0, 0, false
	}
	if s.IsFull() {
		return model.Sunday, model.Sunday, true
	}

	for _, d := range s.Days() {
		if !s.Has(d.Previous()) {
			checkIn = d
			break
		}
	}
	checkOut = checkIn
	for s.Has(checkOut) {
		checkOut = checkOut.Next()
	}
	return checkIn, checkOut, true
}

// Run returns the block that starts on checkIn and ends the day before
// checkOut, wrapping past Saturday. Equal days mean the full week.
// It is the inverse of DeriveCheckInOut.
func Run(checkIn, checkOut model.Weekday) model.AvailabilitySet {
	if !checkIn.Valid() || !checkOut.Valid() {
		return 0
	}
	s := model.NewAvailabilitySet(checkIn)
	for d := checkIn.Next(); d != checkOut; d = d.Next() {
		s = s.With(d)
	}
	return s
}

// RemovalWouldViolateMinimum reports whether removing day from s would leave
// fewer than minNights nights. Nights are days minus one because the trailing
// day is the check-out boundary, not an occupied night. Removing a day that
// is not selected never violates.
func RemovalWouldViolateMinimum(s model.AvailabilitySet, day model.Weekday, minNights int) bool {
	if !s.Has(day) {
		return false
	}
	remaining := s.Without(day).Len()
	nights := remaining - 1
	if nights < 0 {
		nights = 0
	}
	return nights < minNights
}
