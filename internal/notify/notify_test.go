package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leasesched/internal/invite"
	"leasesched/internal/model"
	"leasesched/internal/retry"
)

type flakySender struct {
	failures int
	sent     []Message
}

func (s *flakySender) Send(_ context.Context, msg Message) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("relay unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

var fastPolicy = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}

func bookedRequest() *model.MeetingRequest {
	slot := model.SlotIn(time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC), time.UTC)
	return &model.MeetingRequest{
		ID:             "m1",
		ProposalID:     "p/1",
		RequestedBy:    "host",
		CandidateSlots: []model.Slot{slot},
		BookedSlot:     &slot,
	}
}

func inviteOptions(Event) invite.Options {
	return invite.Options{Organizer: invite.Party{Email: "leasing@example.com"}}
}

func TestDispatchRetriesAndBuildsInvite(t *testing.T) {
	sender := &flakySender{failures: 2}
	d := NewDispatcher(sender, fastPolicy, inviteOptions)

	res := d.Dispatch(context.Background(), Event{
		Kind:       KindBooked,
		ProposalID: "p/1",
		Request:    bookedRequest(),
		At:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !res.OK() {
		t.Fatalf("Dispatch: %v", res.Err)
	}
	if len(res.Attempts) != 3 || len(sender.sent) != 1 {
		t.Fatalf("attempts = %d, sent = %d", len(res.Attempts), len(sender.sent))
	}

	sum, err := invite.Parse(sender.sent[0].Invite)
	if err != nil {
		t.Fatalf("invite does not parse: %v", err)
	}
	if sum.Method != "REQUEST" || sum.Status != "TENTATIVE" {
		t.Errorf("unexpected invite %+v", sum)
	}
}

func TestDispatchWithoutInvite(t *testing.T) {
	sender := &flakySender{}
	d := NewDispatcher(sender, fastPolicy, nil)

	res := d.Dispatch(context.Background(), Event{Kind: KindDeclined, ProposalID: "p1", Actor: "guest"})
	if !res.OK() {
		t.Fatal(res.Err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Invite != nil {
		t.Fatalf("unexpected messages %+v", sender.sent)
	}
}

func TestDispatchBuildFailureIsPermanent(t *testing.T) {
	sender := &flakySender{}
	d := NewDispatcher(sender, fastPolicy, inviteOptions)

	req := bookedRequest()
	req.BookedSlot = nil
	res := d.Dispatch(context.Background(), Event{Kind: KindConfirmed, ProposalID: "p1", Request: req})

	if !errors.Is(res.Err, retry.ErrPermanent) || !errors.Is(res.Err, invite.ErrNotBooked) {
		t.Fatalf("err = %v", res.Err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestDispatchGivesUp(t *testing.T) {
	sender := &flakySender{failures: 10}
	d := NewDispatcher(sender, fastPolicy, nil)

	res := d.Dispatch(context.Background(), Event{Kind: KindExpired, ProposalID: "p1"})
	if !errors.Is(res.Err, retry.ErrAttemptsExhausted) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestOutboxSender(t *testing.T) {
	dir := t.TempDir()
	d := NewDispatcher(OutboxSender{Dir: dir}, fastPolicy, inviteOptions)
	ev := Event{Kind: KindCancelled, ProposalID: "p/1", Request: bookedRequest()}

	for i := 0; i < 2; i++ {
		if res := d.Dispatch(context.Background(), ev); !res.OK() {
			t.Fatalf("Dispatch #%d: %v", i, res.Err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("outbox holds %d files, want one invite and one event", len(entries))
	}
	body, err := os.ReadFile(filepath.Join(dir, "p-1_cancelled_m1-leasesched.ics"))
	if err != nil {
		t.Fatal(err)
	}
	sum, err := invite.Parse(body)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Method != "CANCEL" {
		t.Errorf("Method = %q", sum.Method)
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{Event: Event{Kind: KindRequested, ProposalID: "p1"}}); err != nil {
		t.Fatal(err)
	}
}
