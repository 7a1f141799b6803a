package calendar

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"leasesched/internal/model"
)

const defaultMaxNights = 366

// rruleDays maps model weekdays (0=Sunday) to rrule weekdays (0=Monday).
var rruleDays = [model.DaysPerWeek]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// ExpandNights returns the concrete dates (midnight in loc) inside
// [from, to] that fall on a night of set, using a weekly recurrence rule.
// At most 366 dates are returned.
func ExpandNights(set model.AvailabilitySet, from, to time.Time, loc *time.Location) ([]time.Time, error) {
	if to.Before(from) {
		return nil, errors.New("expand nights: to is before from")
	}
	if set.IsEmpty() {
		return []time.Time{}, nil
	}
	if loc == nil {
		loc = from.Location()
	}

	fy, fm, fd := from.In(loc).Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, loc)
	ty, tm, td := to.In(loc).Date()
	end := time.Date(ty, tm, td, 0, 0, 0, 0, loc)

	byDay := make([]rrule.Weekday, 0, model.DaysPerWeek)
	for _, d := range set.Days() {
		byDay = append(byDay, rruleDays[d.Index()])
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Until:     end,
		Wkst:      rrule.SU,
		Byweekday: byDay,
	})
	if err != nil {
		return nil, err
	}
	nights := make([]time.Time, 0, model.DaysPerWeek)
	next := r.Iterator()
	for len(nights) < defaultMaxNights {
		t, ok := next()
		if !ok {
			break
		}
		nights = append(nights, t)
	}
	return nights, nil
}

// WeeklyRule renders set as an RRULE value (e.g. "FREQ=WEEKLY;WKST=SU;BYDAY=MO,TU").
func WeeklyRule(set model.AvailabilitySet) string {
	byDay := make([]rrule.Weekday, 0, model.DaysPerWeek)
	for _, d := range set.Days() {
		byDay = append(byDay, rruleDays[d.Index()])
	}
	opt := rrule.ROption{Freq: rrule.WEEKLY, Wkst: rrule.SU, Byweekday: byDay}
	return opt.RRuleString()
}
