// Package calendar holds the pure date/time arithmetic behind the weekly
// scheduler: candidate meeting slots for a day, month grids for the date
// picker, past checks against a caller-supplied "now" and timezone
// normalization. Nothing here reads the system clock.
package calendar

import (
	"fmt"
	"time"
)

// InvalidRangeError is returned by GenerateSlots for an empty or malformed
// hour range.
type InvalidRangeError struct {
	StartHour       int
	EndHour         int
	IntervalMinutes int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid slot range: start=%d end=%d interval=%dm",
		e.StartHour, e.EndHour, e.IntervalMinutes)
}

// GenerateSlots enumerates slot start times in [startHour, endHour) on day's
// calendar date, stepped by intervalMinutes.
//
// The date is read from day as seen in loc and the slots are built from
// wall-clock hours in loc, so a DST transition shortens or lengthens the
// list rather than shifting every slot by an hour. A nil loc uses day's
// own location.
func GenerateSlots(day time.Time, startHour, endHour, intervalMinutes int, loc *time.Location) ([]time.Time, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour || intervalMinutes <= 0 {
		return nil, &InvalidRangeError{StartHour: startHour, EndHour: endHour, IntervalMinutes: intervalMinutes}
	}
	if loc == nil {
		loc = day.Location()
	}

	local := day.In(loc)
	y, m, d := local.Date()

	startMin := startHour * 60
	endMin := endHour * 60
	out := make([]time.Time, 0, (endMin-startMin)/intervalMinutes+1)
	for min := startMin; min < endMin; min += intervalMinutes {
		// time.Date normalizes minute overflow into hours.
		out = append(out, time.Date(y, m, d, 0, min, 0, 0, loc))
	}
	return out, nil
}

// Cell is one square of a month grid. Empty cells pad the first and last
// week so every row has seven entries.
type Cell struct {
	Date  time.Time `json:"date"`
	Empty bool      `json:"empty"`
}

// GenerateMonthGrid lays out month in a 7-wide grid whose first column is
// Sunday. Leading empty cells pad the days before the 1st and trailing
// empty cells complete the final week.
func GenerateMonthGrid(year int, month time.Month, loc *time.Location) []Cell {
	if loc == nil {
		loc = time.UTC
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	lead := int(first.Weekday())

	total := lead + daysInMonth
	if rem := total % 7; rem != 0 {
		total += 7 - rem
	}

	cells := make([]Cell, total)
	for i := range cells {
		day := i - lead + 1
		if day < 1 || day > daysInMonth {
			cells[i] = Cell{Empty: true}
			continue
		}
		cells[i] = Cell{Date: time.Date(year, month, day, 0, 0, 0, 0, loc)}
	}
	return cells
}

// IsPast reports whether t is strictly before now. time.Time comparisons
// use the instant, so the zones of t and now do not matter.
func IsPast(t, now time.Time) bool {
	return t.Before(now)
}

// Normalize converts t into the reference zone. A nil ref means UTC.
func Normalize(t time.Time, ref *time.Location) time.Time {
	if ref == nil {
		ref = time.UTC
	}
	return t.In(ref)
}

// DisplayLayout is the layout used by Format.
const DisplayLayout = "Mon, Jan 2 2006 3:04 PM MST"

// Format renders t in the reference zone using DisplayLayout.
func Format(t time.Time, ref *time.Location) string {
	return Normalize(t, ref).Format(DisplayLayout)
}

// ResolveLocation loads an IANA zone. An empty name is UTC; an unknown name
// returns UTC together with the load error so the caller can decide whether
// to log or reject it.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}
