// Package busy blocks meeting slots that collide with the leasing team's
// own calendars. Subscribed iCalendar feeds are fetched with HTTP caching,
// their events expanded over a rolling horizon and merged into busy
// intervals that slot listings are checked against.
package busy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appLog "leasesched/internal/log"
)

// Source fetches a feed body; *Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, feed Feed) (Fetched, error)
}

// Options configure a Calendar.
type Options struct {
	// Horizon is how far ahead of now events are expanded.
	Horizon time.Duration

	// Floating is the zone for feed times that name none.
	Floating *time.Location

	// MaxInstances caps each recurring series.
	MaxInstances int

	// Clock supplies now. Nil uses time.Now.
	Clock func() time.Time
}

// Status describes the last refresh.
type Status struct {
	RefreshedAt time.Time `json:"refreshed_at"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Feeds       int       `json:"feeds"`
	Failed      []string  `json:"failed,omitempty"`
	Intervals   int       `json:"intervals"`
}

// Calendar holds the merged busy intervals of all feeds. Busy is safe to
// call while a refresh runs.
type Calendar struct {
	source Source
	feeds  []Feed
	opts   Options

	mu        sync.RWMutex
	intervals []Interval
	perFeed   map[string][]Block // last good parse per feed ID
	status    Status
}

// NewCalendar returns an empty calendar; call Refresh to load it.
func NewCalendar(source Source, feeds []Feed, opts Options) *Calendar {
	if opts.Horizon <= 0 {
		opts.Horizon = 60 * 24 * time.Hour
	}
	if opts.Floating == nil {
		opts.Floating = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Calendar{
		source:  source,
		feeds:   feeds,
		opts:    opts,
		perFeed: make(map[string][]Block),
	}
}

// Refresh fetches every feed and rebuilds the busy intervals. A feed that
// fails keeps the blocks of its last good refresh; all failures are
// returned together.
func (c *Calendar) Refresh(ctx context.Context) error {
	now := c.opts.Clock()
	from := now.Add(-24 * time.Hour)
	to := now.Add(c.opts.Horizon)

	var (
		errs   []error
		failed []string
		fresh  = make(map[string][]Block, len(c.feeds))
	)
	for _, feed := range c.feeds {
		got, err := c.source.Fetch(ctx, feed)
		if err == nil {
			var skipped Skipped
			var blocks []Block
			blocks, skipped, err = Parse(feed.ID, got.Body, c.opts.Floating)
			if err == nil {
				fresh[feed.ID] = blocks
				appLog.Debug("feed parsed", "feed", feed.ID, "blocks", len(blocks),
					"free", skipped.Free, "cancelled", skipped.Cancelled, "invalid", skipped.Invalid,
					"from_cache", got.FromCache)
				continue
			}
		}
		failed = append(failed, feed.ID)
		errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
		appLog.Error("busy feed refresh failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, blocks := range fresh {
		c.perFeed[id] = blocks
	}
	var all []Block
	for _, feed := range c.feeds {
		all = append(all, c.perFeed[feed.ID]...)
	}
	exp, err := Expand(all, from, to, c.opts.MaxInstances)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if len(exp.Truncated) > 0 {
		appLog.Warn("busy series truncated", "uids", exp.Truncated, "cap", c.opts.MaxInstances)
	}
	if len(exp.BadRules) > 0 {
		appLog.Warn("busy series with unreadable RRULE", "uids", exp.BadRules)
	}
	c.intervals = exp.Intervals
	c.status = Status{
		RefreshedAt: now,
		From:        from,
		To:          to,
		Feeds:       len(c.feeds),
		Failed:      failed,
		Intervals:   len(exp.Intervals),
	}
	appLog.Info("busy calendar refreshed", "feeds", len(c.feeds), "failed", len(failed), "intervals", len(exp.Intervals))
	return errors.Join(errs...)
}

// Busy reports whether [start, end) overlaps a busy interval.
func (c *Calendar) Busy(start, end time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// First interval ending after start.
	i := sort.Search(len(c.intervals), func(i int) bool { return c.intervals[i].End.After(start) })
	return i < len(c.intervals) && c.intervals[i].Overlaps(start, end)
}

// Intervals returns a copy of the current busy intervals.
func (c *Calendar) Intervals() []Interval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Interval(nil), c.intervals...)
}

// Status returns the outcome of the last refresh.
func (c *Calendar) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.status
	s.Failed = append([]string(nil), s.Failed...)
	return s
}
