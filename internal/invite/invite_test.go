package invite

import (
	"errors"
	"strings"
	"testing"
	"time"

	"leasesched/internal/model"
)

func bookedRequest(t *testing.T) *model.MeetingRequest {
	t.Helper()
	nyc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	slot := model.SlotIn(time.Date(2026, 3, 3, 10, 0, 0, 0, nyc), nyc)
	return &model.MeetingRequest{
		ID:             "9b2f0c1e",
		ProposalID:     "p1",
		RequestedBy:    "host",
		CandidateSlots: []model.Slot{slot},
		BookedSlot:     &slot,
	}
}

func testOptions() Options {
	return Options{
		Organizer: Party{Email: "leasing@example.com", Name: "Leasing team"},
		Attendees: []Party{{Email: "host@example.com", Name: "Host"}, {Email: "guest@example.com"}},
		Duration:  45 * time.Minute,
		Stamp:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestBuildTentativeRequest(t *testing.T) {
	body, err := Build(bookedRequest(t), testOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, body)
	}
	if got.Method != "REQUEST" || got.Status != "TENTATIVE" || got.Sequence != 0 {
		t.Errorf("unexpected method/status/sequence: %+v", got)
	}
	if got.UID != "9b2f0c1e@leasesched" {
		t.Errorf("UID = %q", got.UID)
	}
	wantStart := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	if !got.Start.Equal(wantStart) || !got.End.Equal(wantStart.Add(45*time.Minute)) {
		t.Errorf("start/end = %v/%v", got.Start, got.End)
	}
	if got.Organizer != "leasing@example.com" {
		t.Errorf("Organizer = %q", got.Organizer)
	}
	if len(got.Attendees) != 2 || got.Attendees[1] != "guest@example.com" {
		t.Errorf("Attendees = %v", got.Attendees)
	}
	if !strings.Contains(got.Title, "p1") {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestBuildConfirmedAndCancelled(t *testing.T) {
	req := bookedRequest(t)
	req.ConfirmedByThirdParty = true

	body, err := Build(req, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "CONFIRMED" || got.Sequence != 1 {
		t.Errorf("confirmed invite: %+v", got)
	}

	opts := testOptions()
	opts.Cancel = true
	body, err = Build(req, opts)
	if err != nil {
		t.Fatal(err)
	}
	got, err = Parse(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.Method != "CANCEL" || got.Status != "CANCELLED" || got.Sequence != 2 {
		t.Errorf("cancel invite: %+v", got)
	}
}

func TestBuildRequiresBooking(t *testing.T) {
	req := bookedRequest(t)
	req.BookedSlot = nil
	if _, err := Build(req, testOptions()); !errors.Is(err, ErrNotBooked) {
		t.Fatalf("err = %v, want ErrNotBooked", err)
	}
	if _, err := Build(nil, testOptions()); !errors.Is(err, ErrNotBooked) {
		t.Fatalf("err = %v, want ErrNotBooked", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("empty body accepted")
	}
	if _, err := Parse([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n")); err == nil {
		t.Fatal("calendar without events accepted")
	}
}
