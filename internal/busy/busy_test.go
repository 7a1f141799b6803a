package busy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appLog "leasesched/internal/log"
	"leasesched/internal/retry"
)

const teamFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//leasing team//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20260301T000000Z
DTSTART;TZID=America/New_York:20260302T100000
DTEND;TZID=America/New_York:20260302T103000
RRULE:FREQ=DAILY;COUNT=5
EXDATE;TZID=America/New_York:20260304T100000
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup
DTSTAMP:20260301T000000Z
RECURRENCE-ID;TZID=America/New_York:20260303T100000
DTSTART;TZID=America/New_York:20260303T140000
DTEND;TZID=America/New_York:20260303T143000
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:standup
DTSTAMP:20260301T000000Z
RECURRENCE-ID;TZID=America/New_York:20260305T100000
DTSTART;TZID=America/New_York:20260305T100000
DTEND;TZID=America/New_York:20260305T103000
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:lunch
DTSTAMP:20260301T000000Z
DTSTART:20260302T170000Z
DTEND:20260302T180000Z
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
UID:offsite
DTSTAMP:20260301T000000Z
DTSTART;VALUE=DATE:20260306
DTEND;VALUE=DATE:20260307
END:VEVENT
BEGIN:VEVENT
UID:review
DTSTAMP:20260301T000000Z
DTSTART:20260302T200000Z
DURATION:PT1H
END:VEVENT
BEGIN:VEVENT
UID:dropped
DTSTAMP:20260301T000000Z
DTSTART:20260302T120000Z
DTEND:20260302T130000Z
STATUS:CANCELLED
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte { return []byte(strings.ReplaceAll(s, "\n", "\r\n")) }

func quiet(t *testing.T) {
	t.Helper()
	appLog.SetOutput(io.Discard)
	t.Cleanup(func() { appLog.SetOutput(nil) })
}

func utc(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.UTC)
}

func TestParseSkipsFreeAndCancelled(t *testing.T) {
	blocks, skipped, err := Parse("team", crlf(teamFeed), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if skipped.Free != 1 || skipped.Cancelled != 2 || skipped.Invalid != 0 {
		t.Fatalf("skipped = %+v", skipped)
	}
	// standup, its two overrides, offsite, review.
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks, want 5", len(blocks))
	}

	byUID := map[string]Block{}
	for _, b := range blocks {
		if b.RecurrenceID == nil {
			byUID[b.UID] = b
		}
	}
	if b := byUID["review"]; !b.End.Equal(utc(2, 21, 0)) {
		t.Fatalf("review end = %v", b.End)
	}
	if b := byUID["offsite"]; !b.AllDay || !b.Start.Equal(utc(6, 0, 0)) {
		t.Fatalf("offsite = %+v", b)
	}
	if b := byUID["standup"]; len(b.ExDates) != 1 || !b.Start.Equal(utc(2, 15, 0)) {
		t.Fatalf("standup = %+v", b)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, _, err := Parse("team", nil, nil); err == nil {
		t.Fatal("empty body accepted")
	}
	if _, _, err := Parse("team", []byte("hello"), nil); err == nil {
		t.Fatal("non-calendar body accepted")
	}
}

func TestExpandAppliesOverridesAndMerges(t *testing.T) {
	blocks, _, err := Parse("team", crlf(teamFeed), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	exp, err := Expand(blocks, utc(1, 0, 0), utc(10, 0, 0), 0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []Interval{
		{utc(2, 15, 0), utc(2, 15, 30)},
		{utc(2, 20, 0), utc(2, 21, 0)},
		{utc(3, 19, 0), utc(3, 19, 30)}, // moved instance
		{utc(6, 0, 0), utc(7, 0, 0)},    // offsite swallows the last standup
	}
	if len(exp.Intervals) != len(want) {
		t.Fatalf("intervals = %v, want %v", exp.Intervals, want)
	}
	for i := range want {
		if !exp.Intervals[i].Start.Equal(want[i].Start) || !exp.Intervals[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d = %v, want %v", i, exp.Intervals[i], want[i])
		}
	}
}

func TestExpandCapsSeries(t *testing.T) {
	blocks := []Block{{
		UID:   "hourly",
		Start: utc(2, 0, 0),
		End:   utc(2, 0, 10),
		RRule: "FREQ=HOURLY",
	}}
	exp, err := Expand(blocks, utc(2, 0, 0), utc(3, 0, 0), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(exp.Truncated) != 1 || len(exp.Intervals) != 5 {
		t.Fatalf("expansion = %+v", exp)
	}

	bad := []Block{{UID: "odd", Start: utc(2, 9, 0), End: utc(2, 10, 0), RRule: "FREQ=SOMETIMES"}}
	exp, err = Expand(bad, utc(2, 0, 0), utc(3, 0, 0), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(exp.BadRules) != 1 || len(exp.Intervals) != 1 {
		t.Fatalf("bad rule expansion = %+v", exp)
	}

	if _, err := Expand(nil, utc(3, 0, 0), utc(2, 0, 0), 0); err == nil {
		t.Fatal("inverted window accepted")
	}
}

func TestIntervalOverlapsIsHalfOpen(t *testing.T) {
	iv := Interval{utc(2, 10, 0), utc(2, 11, 0)}
	tests := []struct {
		start, end time.Time
		want       bool
	}{
		{utc(2, 9, 30), utc(2, 10, 0), false},
		{utc(2, 11, 0), utc(2, 11, 30), false},
		{utc(2, 10, 30), utc(2, 11, 0), true},
		{utc(2, 9, 0), utc(2, 12, 0), true},
	}
	for _, tt := range tests {
		if got := iv.Overlaps(tt.start, tt.end); got != tt.want {
			t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT1H":    time.Hour,
		"PT1H30M": 90 * time.Minute,
		"P1D":     24 * time.Hour,
		"P1W":     7 * 24 * time.Hour,
		"P1DT2H":  26 * time.Hour,
		"-PT15M":  -15 * time.Minute,
		"pt45s":   45 * time.Second,
	}
	for in, want := range tests {
		got, err := parseDuration(in)
		if err != nil || got != want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "P", "1H", "PT", "P1H", "PT1D", "PT1H2"} {
		if _, err := parseDuration(in); err == nil {
			t.Errorf("parseDuration(%q) accepted", in)
		}
	}
}

func TestFetcherCachesAndFallsBack(t *testing.T) {
	quiet(t)
	var (
		hits   atomic.Int32
		broken atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if broken.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(teamFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client(), retry.Policy{Attempts: 2})
	feed := Feed{ID: "team", URL: srv.URL + "/private/token.ics"}

	got, err := f.Fetch(context.Background(), feed)
	if err != nil || got.FromCache || len(got.Body) == 0 {
		t.Fatalf("first fetch = %+v, %v", got.FromCache, err)
	}

	got, err = f.Fetch(context.Background(), feed)
	if err != nil || !got.FromCache || !strings.Contains(string(got.Body), "UID:standup") {
		t.Fatalf("conditional fetch = %+v, %v", got.FromCache, err)
	}

	broken.Store(true)
	before := hits.Load()
	got, err = f.Fetch(context.Background(), feed)
	if err != nil || !got.FromCache {
		t.Fatalf("fallback fetch = %+v, %v", got.FromCache, err)
	}
	if n := hits.Load() - before; n != 2 {
		t.Fatalf("server errors should be retried: %d requests", n)
	}
}

func TestFetcherClientErrorIsNotRetried(t *testing.T) {
	quiet(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client(), retry.Policy{Attempts: 3})
	_, err := f.Fetch(context.Background(), Feed{ID: "gone", URL: srv.URL})
	if !errors.Is(err, retry.ErrPermanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("%d requests for a 404", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://cal.example.com/private/abc123/basic.ics?token=x"); got != "https://cal.example.com/...(redacted)" {
		t.Fatalf("redactURL = %q", got)
	}
	if got := redactURL("not a url"); strings.Contains(got, "not a url") {
		t.Fatalf("redactURL leaked input: %q", got)
	}
}

type stubSource struct {
	bodies map[string][]byte
	fail   map[string]bool
}

func (s *stubSource) Fetch(_ context.Context, feed Feed) (Fetched, error) {
	if s.fail[feed.ID] {
		return Fetched{}, errors.New("unreachable")
	}
	return Fetched{Feed: feed, Body: s.bodies[feed.ID]}, nil
}

func TestCalendarRefreshKeepsLastGoodFeed(t *testing.T) {
	quiet(t)
	src := &stubSource{
		bodies: map[string][]byte{"team": crlf(teamFeed)},
		fail:   map[string]bool{},
	}
	feeds := []Feed{{ID: "team", URL: "https://cal.example.com/team.ics"}}
	cal := NewCalendar(src, feeds, Options{
		Horizon: 14 * 24 * time.Hour,
		Clock:   func() time.Time { return utc(2, 9, 0) },
	})

	if err := cal.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !cal.Busy(utc(2, 15, 0), utc(2, 15, 30)) {
		t.Fatal("standup slot should be busy")
	}
	if cal.Busy(utc(2, 15, 30), utc(2, 16, 0)) {
		t.Fatal("slot after standup should be free")
	}
	if cal.Busy(utc(2, 17, 0), utc(2, 17, 30)) {
		t.Fatal("transparent lunch should not block")
	}

	src.fail["team"] = true
	if err := cal.Refresh(context.Background()); err == nil {
		t.Fatal("failed feed not reported")
	}
	if !cal.Busy(utc(2, 15, 0), utc(2, 15, 30)) {
		t.Fatal("failed refresh dropped the last good blocks")
	}
	if st := cal.Status(); len(st.Failed) != 1 || st.Intervals == 0 {
		t.Fatalf("status = %+v", st)
	}
}
