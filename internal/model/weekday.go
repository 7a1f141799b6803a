package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekday is one of the seven fixed days of a weekly schedule.
// The zero value is Sunday; indices follow time.Weekday (0=Sun..6=Sat).
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// DaysPerWeek is the number of weekdays in a schedule.
const DaysPerWeek = 7

type weekdayInfo struct {
	name  string
	short string
	next  Weekday
	prev  Weekday
}

// weekdays is built once at init and never mutated afterwards.
var weekdays [DaysPerWeek]weekdayInfo

func init() {
	names := [DaysPerWeek]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	for i := 0; i < DaysPerWeek; i++ {
		weekdays[i] = weekdayInfo{
			name:  names[i],
			short: names[i][:3],
			next:  Weekday((i + 1) % DaysPerWeek),
			prev:  Weekday((i + DaysPerWeek - 1) % DaysPerWeek),
		}
	}
}

// AllWeekdays returns Sunday..Saturday in index order.
func AllWeekdays() []Weekday {
	out := make([]Weekday, DaysPerWeek)
	for i := range out {
		out[i] = Weekday(i)
	}
	return out
}

// Index returns the zero-based index (0=Sunday).
func (d Weekday) Index() int { return int(d) }

// Valid reports whether d is one of the seven weekdays.
func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

// Next returns the calendar day that follows d (Saturday -> Sunday).
func (d Weekday) Next() Weekday { return weekdays[d.mustIndex()].next }

// Previous returns the calendar day that precedes d (Sunday -> Saturday).
func (d Weekday) Previous() Weekday { return weekdays[d.mustIndex()].prev }

// String returns the full English day name.
func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdays[d].name
}

// Short returns the three-letter abbreviation ("Mon").
func (d Weekday) Short() string {
	if !d.Valid() {
		return d.String()
	}
	return weekdays[d].short
}

func (d Weekday) mustIndex() int {
	if !d.Valid() {
		panic(fmt.Sprintf("model: invalid weekday %d", int(d)))
	}
	return int(d)
}

// ParseWeekday accepts a full day name, a three-letter abbreviation or a
// decimal index 0..6. Matching is case-insensitive.
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("parse weekday: empty value")
	}
	if n, err := strconv.Atoi(v); err == nil {
		d := Weekday(n)
		if !d.Valid() {
			return 0, fmt.Errorf("parse weekday: index %d out of range", n)
		}
		return d, nil
	}
	for i, info := range weekdays {
		if v == strings.ToLower(info.name) || v == strings.ToLower(info.short) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("parse weekday: unknown day %q", s)
}
