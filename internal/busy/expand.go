package busy

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxInstances = 2000

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the interval. Touching
// ranges do not overlap, so a meeting may start when a busy block ends.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

// Expansion is the result of Expand.
type Expansion struct {
	Intervals []Interval
	// Truncated lists UIDs whose series hit the instance cap.
	Truncated []string
	// BadRules lists UIDs whose RRULE could not be read; their first
	// instance is still counted.
	BadRules []string
}

// Expand turns blocks into merged busy intervals inside [from, to).
// Recurring blocks are expanded with their EXDATEs, and overrides sharing
// a UID replace or remove the instance named by their RECURRENCE-ID.
// maxInstances caps each series; zero uses a default.
func Expand(blocks []Block, from, to time.Time, maxInstances int) (Expansion, error) {
	var out Expansion
	if !from.Before(to) {
		return out, errors.New("expand: empty window")
	}
	if maxInstances <= 0 {
		maxInstances = defaultMaxInstances
	}

	overrides := make(map[string][]int)
	var masters []Block
	for i, b := range blocks {
		if b.RecurrenceID != nil {
			overrides[b.UID] = append(overrides[b.UID], i)
			continue
		}
		masters = append(masters, b)
	}

	x := expander{blocks: blocks, overrides: overrides, used: make(map[int]bool)}
	for _, m := range masters {
		if m.RRule == "" {
			x.add(m, m.Start)
			continue
		}
		starts, capped, err := seriesStarts(m, from, to, maxInstances)
		if err != nil {
			out.BadRules = append(out.BadRules, m.UID)
			x.add(m, m.Start)
			continue
		}
		if capped {
			out.Truncated = append(out.Truncated, m.UID)
		}
		for _, s := range starts {
			x.add(m, s)
		}
	}

	// Overrides whose original instance lies outside the window may have
	// been moved into it.
	for i, b := range blocks {
		if b.RecurrenceID != nil && !b.Cancelled && !x.used[i] {
			x.raw = append(x.raw, Interval{Start: b.Start, End: b.End})
		}
	}

	out.Intervals = clip(merge(x.raw), from, to)
	return out, nil
}

func seriesStarts(m Block, from, to time.Time, max int) ([]time.Time, bool, error) {
	opt, err := rrule.StrToROptionInLocation(m.RRule, m.Start.Location())
	if err != nil {
		return nil, false, err
	}
	opt.Dtstart = m.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, err
	}
	var set rrule.Set
	set.RRule(r)
	for _, ex := range m.ExDates {
		set.ExDate(ex.In(m.Start.Location()))
	}

	// Instances starting before the window may still run into it.
	length := m.End.Sub(m.Start)
	starts := set.Between(from.Add(-length), to, true)
	if len(starts) > max {
		return starts[:max], true, nil
	}
	return starts, false, nil
}

type expander struct {
	blocks    []Block
	overrides map[string][]int // UID -> indexes of overrides in blocks
	used      map[int]bool
	raw       []Interval
}

// add records the instance of m starting at start, or the override
// replacing it.
func (x *expander) add(m Block, start time.Time) {
	for _, i := range x.overrides[m.UID] {
		o := x.blocks[i]
		if !o.RecurrenceID.Equal(start) {
			continue
		}
		x.used[i] = true
		if !o.Cancelled {
			x.raw = append(x.raw, Interval{Start: o.Start, End: o.End})
		}
		return
	}
	end := start.Add(m.End.Sub(m.Start))
	if m.AllDay {
		// An all-day instance covers whole local days even across DST.
		days := int(m.End.Sub(m.Start).Hours()+12) / 24
		if days < 1 {
			days = 1
		}
		end = start.AddDate(0, 0, days)
	}
	x.raw = append(x.raw, Interval{Start: start, End: end})
}

// merge sorts intervals and joins the ones that overlap or touch.
func merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func clip(in []Interval, from, to time.Time) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Overlaps(from, to) {
			continue
		}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(to) {
			iv.End = to
		}
		out = append(out, iv)
	}
	return out
}
