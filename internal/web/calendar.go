package web

import (
	"net/http"
	"time"

	"leasesched/internal/busy"
	"leasesched/internal/calendar"
)

const dateLayout = "2006-01-02"

type slotDTO struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
	Past  bool      `json:"past"`

	// Busy marks a slot that collides with the team's calendars.
	Busy bool `json:"busy"`
}

type slotsResponse struct {
	Date     string    `json:"date"`
	Timezone string    `json:"timezone"`
	Slots    []slotDTO `json:"slots"`
}

// handleSlots lists the meeting slots offered on one day.
//
// GET /api/calendar/slots?date=2026-03-03&tz=America/New_York
//   - date: calendar date in tz (default: today in tz)
//   - tz:   IANA zone (default: config timezone)
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	loc, err := s.locationParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown timezone")
		return
	}
	now := s.now()

	day := now.In(loc)
	if v := r.URL.Query().Get("date"); v != "" {
		if day, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "date must be YYYY-MM-DD")
			return
		}
	}

	sc := s.cfg.Slots
	times, err := calendar.GenerateSlots(day, sc.StartHour, sc.EndHour, sc.IntervalMinutes, loc)
	if err != nil {
		writeFailure(w, "generate slots", err)
		return
	}

	length := time.Duration(s.cfg.Meeting.DurationMinutes) * time.Minute
	out := make([]slotDTO, 0, len(times))
	for _, t := range times {
		out = append(out, slotDTO{
			Start: t,
			Label: calendar.Format(t, loc),
			Past:  calendar.IsPast(t, now),
			Busy:  s.deps.Busy != nil && s.deps.Busy.Busy(t, t.Add(length)),
		})
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		Date:     day.Format(dateLayout),
		Timezone: loc.String(),
		Slots:    out,
	})
}

type cellDTO struct {
	Date  string `json:"date,omitempty"`
	Empty bool   `json:"empty"`
	Past  bool   `json:"past"`
	Today bool   `json:"today"`
}

type monthResponse struct {
	Year     int         `json:"year"`
	Month    int         `json:"month"`
	Timezone string      `json:"timezone"`
	Weeks    [][]cellDTO `json:"weeks"`
}

// handleMonth returns a Sunday-first month grid for the date picker.
//
// GET /api/calendar/month?year=2026&month=3&tz=...
// Missing year/month default to the current month in tz.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	loc, err := s.locationParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown timezone")
		return
	}
	now := s.now().In(loc)
	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1 {
		writeError(w, http.StatusUnprocessableEntity, "month must be 1-12")
		return
	}

	ty, tm, td := now.Date()
	today := time.Date(ty, tm, td, 0, 0, 0, 0, loc)

	cells := calendar.GenerateMonthGrid(year, time.Month(month), loc)
	weeks := make([][]cellDTO, 0, len(cells)/7)
	for i := 0; i < len(cells); i += 7 {
		week := make([]cellDTO, 0, 7)
		for _, c := range cells[i : i+7] {
			if c.Empty {
				week = append(week, cellDTO{Empty: true})
				continue
			}
			week = append(week, cellDTO{
				Date:  c.Date.Format(dateLayout),
				Past:  calendar.IsPast(c.Date, today),
				Today: c.Date.Equal(today),
			})
		}
		weeks = append(weeks, week)
	}

	writeJSON(w, http.StatusOK, monthResponse{
		Year:     year,
		Month:    month,
		Timezone: loc.String(),
		Weeks:    weeks,
	})
}

type busyResponse struct {
	Status    *busy.Status    `json:"status,omitempty"`
	Intervals []busy.Interval `json:"intervals"`
}

// handleBusy lists the team's busy intervals that overlap [from, to).
//
// GET /api/calendar/busy?from=2026-03-02&to=2026-03-09&tz=...
// Defaults to the next 7 days.
func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	loc, err := s.locationParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown timezone")
		return
	}
	q := r.URL.Query()
	y, m, d := s.now().In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if v := q.Get("from"); v != "" {
		if from, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "from must be YYYY-MM-DD")
			return
		}
	}
	to := from.AddDate(0, 0, 7)
	if v := q.Get("to"); v != "" {
		if to, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "to must be YYYY-MM-DD")
			return
		}
	}

	resp := busyResponse{Intervals: []busy.Interval{}}
	if s.deps.Busy == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	st := s.deps.Busy.Status()
	resp.Status = &st
	for _, iv := range s.deps.Busy.Intervals() {
		if iv.Overlaps(from, to) {
			resp.Intervals = append(resp.Intervals, busy.Interval{Start: iv.Start.In(loc), End: iv.End.In(loc)})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
