package busy

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Block is one VEVENT that occupies time, before recurrence expansion.
type Block struct {
	FeedID string
	UID    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set when this VEVENT replaces one instance of a
	// recurring event with the same UID. A cancelled override carries no
	// times and removes the instance.
	RecurrenceID *time.Time
	Cancelled    bool
}

// Skipped counts events that were read but do not block time.
type Skipped struct {
	Free      int // TRANSP:TRANSPARENT
	Cancelled int // STATUS:CANCELLED
	Invalid   int
}

// Parse reads the busy blocks of a feed body. Times without a TZID or UTC
// marker are read in floating, which is usually the organizer's zone.
// Transparent and cancelled events are skipped, and so are events that
// cannot be read; the feed as a whole only fails if it is not iCalendar.
func Parse(feedID string, body []byte, floating *time.Location) ([]Block, Skipped, error) {
	var skipped Skipped
	if len(body) == 0 {
		return nil, skipped, errors.New("empty feed body")
	}
	if floating == nil {
		floating = time.UTC
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, skipped, fmt.Errorf("parse feed %s: %w", feedID, err)
	}

	var blocks []Block
	for _, ev := range cal.Events() {
		if value(ev.GetProperty(ical.ComponentPropertyTransp)) == string(ical.TransparencyTransparent) {
			skipped.Free++
			continue
		}
		if value(ev.GetProperty(ical.ComponentPropertyStatus)) == string(ical.ObjectStatusCancelled) {
			// A cancelled override still removes its instance from the series.
			if rid := ev.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
				if t, _, err := propTime(rid, floating); err == nil {
					blocks = append(blocks, Block{
						FeedID:       feedID,
						UID:          value(ev.GetProperty(ical.ComponentPropertyUniqueId)),
						RecurrenceID: &t,
						Cancelled:    true,
					})
				}
			}
			skipped.Cancelled++
			continue
		}
		b, err := parseEvent(feedID, ev, floating)
		if err != nil {
			skipped.Invalid++
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, skipped, nil
}

func parseEvent(feedID string, ev *ical.VEvent, floating *time.Location) (Block, error) {
	b := Block{FeedID: feedID, UID: value(ev.GetProperty(ical.ComponentPropertyUniqueId))}
	if b.UID == "" {
		return b, errors.New("missing UID")
	}

	dtstart := ev.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return b, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtstart, floating)
	if err != nil {
		return b, fmt.Errorf("DTSTART: %w", err)
	}
	b.Start, b.AllDay = start, allDay

	switch {
	case ev.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := propTime(ev.GetProperty(ical.ComponentPropertyDtEnd), floating)
		if err != nil {
			return b, fmt.Errorf("DTEND: %w", err)
		}
		b.End = end
	case ev.GetProperty(ical.ComponentPropertyDuration) != nil:
		d, err := parseDuration(value(ev.GetProperty(ical.ComponentPropertyDuration)))
		if err != nil {
			return b, fmt.Errorf("DURATION: %w", err)
		}
		b.End = start.Add(d)
	case allDay:
		b.End = start.AddDate(0, 0, 1)
	default:
		b.End = start
	}
	if b.End.Before(b.Start) {
		return b, errors.New("DTEND before DTSTART")
	}

	b.RRule = value(ev.GetProperty(ical.ComponentPropertyRrule))
	for _, p := range ev.GetProperties(ical.ComponentPropertyExdate) {
		loc := floating
		if tz := param(p, ical.ParameterTzid); tz != "" {
			if l, err := time.LoadLocation(tz); err == nil {
				loc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseStamp(strings.TrimSpace(part), loc); err == nil {
				b.ExDates = append(b.ExDates, t)
			}
		}
	}
	if rid := ev.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, _, err := propTime(rid, floating); err == nil {
			b.RecurrenceID = &t
		}
	}
	return b, nil
}

// propTime reads a DATE or DATE-TIME property, honoring its TZID.
func propTime(p *ical.IANAProperty, floating *time.Location) (time.Time, bool, error) {
	loc := floating
	if tz := param(p, ical.ParameterTzid); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, false, err
		}
		loc = l
	}
	t, dateOnly, err := parseStamp(strings.TrimSpace(p.Value), loc)
	if err != nil {
		return time.Time{}, false, err
	}
	if strings.EqualFold(param(p, ical.ParameterValue), "DATE") {
		dateOnly = true
	}
	return t, dateOnly, nil
}

func parseStamp(v string, loc *time.Location) (time.Time, bool, error) {
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

// parseDuration reads the dur-value forms calendar servers emit: P1D, P2W,
// PT1H30M, -PT15M and combinations of days and time.
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if num != "" || inTime {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		num = ""
		unit := time.Duration(n)
		switch {
		case r == 'W' && !inTime:
			total += unit * 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			total += unit * 24 * time.Hour
		case r == 'H' && inTime:
			total += unit * time.Hour
		case r == 'M' && inTime:
			total += unit * time.Minute
		case r == 'S' && inTime:
			total += unit * time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return sign * total, nil
}

func value(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func param(p *ical.IANAProperty, name ical.Parameter) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs := p.ICalParameters[string(name)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
