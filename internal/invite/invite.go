// Package invite renders booked meetings as iCalendar invitations and
// reads them back.
package invite

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"leasesched/internal/model"
)

const (
	productService = "leasesched"
	uidDomain      = "leasesched"
	defaultLength  = 30 * time.Minute
)

// ErrNotBooked is returned when the meeting has no booked slot to invite to.
var ErrNotBooked = errors.New("meeting has no booked slot")

// Party is an invite participant.
type Party struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Options describe the rendered invite.
type Options struct {
	Organizer Party
	Attendees []Party
	// Duration of the meeting. Zero means 30 minutes.
	Duration time.Duration
	// Summary is the event title. Empty uses a generic title with the proposal ID.
	Summary string
	// Cancel renders METHOD:CANCEL for a meeting that was called off.
	Cancel bool
	// Stamp is written as DTSTAMP.
	Stamp time.Time
}

// Build renders req's booked slot as a single-event calendar. STATUS is
// TENTATIVE until the third-party confirmation and CONFIRMED after it;
// SEQUENCE grows with each of those steps so clients replace the earlier
// copy.
func Build(req *model.MeetingRequest, opts Options) ([]byte, error) {
	if req == nil || req.BookedSlot == nil {
		return nil, ErrNotBooked
	}
	if req.ID == "" {
		return nil, errors.New("meeting has no ID")
	}
	slot := *req.BookedSlot
	length := opts.Duration
	if length <= 0 {
		length = defaultLength
	}

	cal := ical.NewCalendarFor(productService)
	method, status, seq := ical.MethodRequest, ical.ObjectStatusTentative, 0
	switch {
	case opts.Cancel:
		method, status, seq = ical.MethodCancel, ical.ObjectStatusCancelled, 2
	case req.ConfirmedByThirdParty:
		status, seq = ical.ObjectStatusConfirmed, 1
	}
	cal.SetMethod(method)

	ev := cal.AddEvent(UID(req))
	ev.SetDtStampTime(opts.Stamp)
	ev.SetSequence(seq)
	ev.SetStartAt(slot.Start)
	ev.SetEndAt(slot.Start.Add(length))
	ev.SetStatus(status)

	summary := opts.Summary
	if summary == "" {
		summary = "Virtual meeting for proposal " + req.ProposalID
	}
	ev.SetSummary(summary)
	ev.SetDescription(fmt.Sprintf("Proposal %s. Scheduled for %s (%s).",
		req.ProposalID, slot.Start.Format("Mon, Jan 2 2006 3:04 PM MST"), slot.Zone))

	if opts.Organizer.Email != "" {
		ev.SetOrganizer(opts.Organizer.Email, partyParams(opts.Organizer)...)
	}
	for _, a := range opts.Attendees {
		if a.Email == "" {
			continue
		}
		params := append(partyParams(a), ical.WithRSVP(!opts.Cancel), ical.ParticipationStatusNeedsAction)
		ev.AddAttendee(a.Email, params...)
	}

	return []byte(cal.Serialize()), nil
}

// UID is the stable event identifier for a meeting record.
func UID(req *model.MeetingRequest) string {
	return req.ID + "@" + uidDomain
}

func partyParams(p Party) []ical.PropertyParameter {
	if p.Name == "" {
		return nil
	}
	return []ical.PropertyParameter{ical.WithCN(p.Name)}
}

// Summary is what Parse extracts from an invite.
type Summary struct {
	Method    string
	UID       string
	Sequence  int
	Status    string
	Title     string
	Start     time.Time
	End       time.Time
	Organizer string
	Attendees []string
}

// Parse reads the first event of an invite.
func Parse(body []byte) (Summary, error) {
	var out Summary
	if len(body) == 0 {
		return out, errors.New("empty invite body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("parse invite: %w", err)
	}
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == string(ical.PropertyMethod) {
			out.Method = p.Value
		}
	}

	events := cal.Events()
	if len(events) == 0 {
		return out, errors.New("invite has no event")
	}
	ev := events[0]

	uid := ev.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("invite event has no UID")
	}
	out.UID = uid.Value

	if p := ev.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Sequence = n
		}
	}
	if p := ev.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = p.Value
	}
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ev.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.Organizer = strings.TrimPrefix(p.Value, "mailto:")
	}

	if out.Start, err = ev.GetStartAt(); err != nil {
		return out, fmt.Errorf("invite start: %w", err)
	}
	if out.End, err = ev.GetEndAt(); err != nil {
		return out, fmt.Errorf("invite end: %w", err)
	}
	for _, a := range ev.Attendees() {
		out.Attendees = append(out.Attendees, a.Email())
	}
	return out, nil
}
