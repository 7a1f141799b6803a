package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"leasesched/internal/calendar"
	"leasesched/internal/contiguity"
	"leasesched/internal/ingest"
	"leasesched/internal/model"
	"leasesched/internal/retry"
	"leasesched/internal/selection"
	"leasesched/internal/store"
)

type availabilityResponse struct {
	ListingID  string            `json:"listing_id"`
	Days       []int             `json:"days"`
	DayNames   []string          `json:"day_names"`
	Nights     int               `json:"nights"`
	Contiguous bool              `json:"contiguous"`
	CheckIn    string            `json:"check_in,omitempty"`
	CheckOut   string            `json:"check_out,omitempty"`
	Rule       string            `json:"rule,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Notice     *selection.Notice `json:"notice,omitempty"`
}

func availabilityView(a store.Availability, notice *selection.Notice) availabilityResponse {
	resp := availabilityResponse{
		ListingID:  a.ListingID,
		Days:       a.Days.Indices(),
		DayNames:   []string{},
		Nights:     a.Days.Nights(),
		Contiguous: contiguity.IsContiguous(a.Days),
		UpdatedAt:  a.UpdatedAt,
		Notice:     notice,
	}
	for _, d := range a.Days.Days() {
		resp.DayNames = append(resp.DayNames, d.String())
	}
	if ci, co, ok := contiguity.DeriveCheckInOut(a.Days); ok {
		resp.CheckIn, resp.CheckOut = ci.String(), co.String()
	}
	if !a.Days.IsEmpty() {
		resp.Rule = calendar.WeeklyRule(a.Days)
	}
	return resp
}

// loadAvailability returns the stored selection, or an empty one for a
// listing that has none yet.
func (s *Server) loadAvailability(ctx context.Context, listingID string) (store.Availability, error) {
	a, err := s.deps.Availability.LoadAvailability(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Availability{ListingID: listingID}, nil
	}
	return a, err
}

func (s *Server) saveAvailability(ctx context.Context, a store.Availability) error {
	res := retry.Do(ctx, s.cfg.Retry, "save availability "+a.ListingID, func(ctx context.Context) error {
		return s.deps.Availability.SaveAvailability(ctx, a)
	})
	return res.Err
}

func (s *Server) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.deps.Availability.LoadAvailability(r.Context(), id)
	if err != nil {
		writeFailure(w, "load availability", err, "listing_id", id)
		return
	}
	writeJSON(w, http.StatusOK, availabilityView(a, nil))
}

// handlePutAvailability replaces a listing's nights. The body may name the
// days field in any casing variant. A 6-day set is stored as the full week;
// the result must pass the configured selection rules.
func (s *Server) handlePutAvailability(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	set, err := ingest.DecodeAvailability(body)
	if err != nil {
		var fe *ingest.FieldError
		if errors.As(err, &fe) {
			writeFailure(w, "decode availability", err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set, notice := selection.AutoComplete(set)
	if err := selection.Validate(set, s.cfg.Selection); err != nil {
		writeFailure(w, "validate availability", err, "listing_id", id)
		return
	}

	mu := s.lock("listing:" + id)
	mu.Lock()
	defer mu.Unlock()

	a := store.Availability{ListingID: id, Days: set, UpdatedAt: s.now()}
	if err := s.saveAvailability(r.Context(), a); err != nil {
		writeFailure(w, "save availability", err, "listing_id", id)
		return
	}
	writeJSON(w, http.StatusOK, availabilityView(a, notice))
}

type toggleRequest struct {
	Day json.RawMessage `json:"day"`
}

// handleToggleAvailability applies one click of the night picker.
//
// POST /api/listings/{id}/availability/toggle  {"day": "Fri"} or {"day": 5}
func (s *Server) handleToggleAvailability(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req toggleRequest
	if err := decodeBody(w, r, &req); err != nil || len(req.Day) == 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"day\": <name or index>}")
		return
	}
	day, err := parseDayJSON(req.Day)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	mu := s.lock("listing:" + id)
	mu.Lock()
	defer mu.Unlock()

	a, err := s.loadAvailability(r.Context(), id)
	if err != nil {
		writeFailure(w, "load availability", err, "listing_id", id)
		return
	}
	sel := selection.New(s.cfg.Selection)
	sel.Restore(a.Days)
	notice, err := sel.Toggle(day)
	if err != nil {
		writeFailure(w, "toggle night", err, "listing_id", id, "day", day.String())
		return
	}

	a.Days = sel.Set()
	a.UpdatedAt = s.now()
	if err := s.saveAvailability(r.Context(), a); err != nil {
		writeFailure(w, "save availability", err, "listing_id", id)
		return
	}
	writeJSON(w, http.StatusOK, availabilityView(a, notice))
}

func parseDayJSON(raw json.RawMessage) (model.Weekday, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return model.ParseWeekday(name)
	}
	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return 0, fmt.Errorf("day must be a name or an index")
	}
	return model.ParseWeekday(fmt.Sprint(idx))
}

type nightsResponse struct {
	ListingID string   `json:"listing_id"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Rule      string   `json:"rule"`
	Dates     []string `json:"dates"`
}

// handleNights expands the weekly selection into calendar dates.
//
// GET /api/listings/{id}/nights?from=2026-03-01&to=2026-03-31&tz=...
// Defaults to the next 28 days.
func (s *Server) handleNights(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	loc, err := s.locationParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown timezone")
		return
	}
	q := r.URL.Query()
	from := s.now().In(loc)
	if v := q.Get("from"); v != "" {
		if from, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "from must be YYYY-MM-DD")
			return
		}
	}
	to := from.AddDate(0, 0, 28)
	if v := q.Get("to"); v != "" {
		if to, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "to must be YYYY-MM-DD")
			return
		}
	}

	a, err := s.deps.Availability.LoadAvailability(r.Context(), id)
	if err != nil {
		writeFailure(w, "load availability", err, "listing_id", id)
		return
	}
	nights, err := calendar.ExpandNights(a.Days, from, to, loc)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := nightsResponse{
		ListingID: id,
		From:      from.Format(dateLayout),
		To:        to.Format(dateLayout),
		Rule:      calendar.WeeklyRule(a.Days),
		Dates:     make([]string, 0, len(nights)),
	}
	for _, n := range nights {
		resp.Dates = append(resp.Dates, n.Format(dateLayout))
	}
	writeJSON(w, http.StatusOK, resp)
}
