package negotiation

import (
	"time"

	"github.com/google/uuid"

	"leasesched/internal/calendar"
	"leasesched/internal/model"
)

const (
	// FreshCandidates is the number of slots a new request must offer.
	FreshCandidates = 3
	// MaxCandidates bounds a re-suggestion.
	MaxCandidates = 3
)

// Negotiation owns the meeting record of one proposal. It is not safe for
// concurrent use; one session writes one negotiation at a time.
//
// Every transition validates first and commits last, so a failed call leaves
// the record untouched. Repeating a call whose effect is already in place
// returns nil without changing anything.
type Negotiation struct {
	proposalID string
	req        *model.MeetingRequest
	newID      func() string
}

// New starts a negotiation with no meeting record.
func New(proposalID string) (*Negotiation, error) {
	if proposalID == "" {
		return nil, ErrProposalRequired
	}
	return &Negotiation{proposalID: proposalID, newID: uuid.NewString}, nil
}

// Load resumes a negotiation from a stored record. req may be nil.
func Load(proposalID string, req *model.MeetingRequest) (*Negotiation, error) {
	n, err := New(proposalID)
	if err != nil {
		return nil, err
	}
	n.req = req.Clone()
	return n, nil
}

func (n *Negotiation) ProposalID() string { return n.proposalID }

// Record returns a copy of the current record, or nil if none exists.
func (n *Negotiation) Record() *model.MeetingRequest { return n.req.Clone() }

// State derives the state for viewer at now.
func (n *Negotiation) State(viewer string, now time.Time) State {
	return Derive(n.req, viewer, now)
}

// CheckExpired reports whether every candidate passed before any was booked.
func (n *Negotiation) CheckExpired(now time.Time) bool {
	// Expired does not depend on who is looking.
	return Derive(n.req, "", now) == StateExpired
}

// Request proposes exactly FreshCandidates slots on behalf of by. It
// creates a record, supersedes a declined or expired one, or replaces
// by's own pending request.
func (n *Negotiation) Request(by string, slots []model.Slot, now time.Time) error {
	if by == "" {
		return ErrPartyRequired
	}
	from := n.State(by, now)
	switch from {
	case StateRequestedByMe:
		if model.SameSlots(n.req.CandidateSlots, slots) {
			return nil
		}
	case StateNoMeeting, StateDeclined, StateExpired:
	default:
		return &InvalidTransitionError{Op: ActionRequest, From: from}
	}
	if err := checkSlots(slots, FreshCandidates, FreshCandidates, now); err != nil {
		return err
	}

	next := n.req.Clone()
	if next == nil || next.Retired {
		next = &model.MeetingRequest{
			ID:         n.newID(),
			ProposalID: n.proposalID,
			CreatedAt:  now,
		}
	}
	next.RequestedBy = by
	next.CandidateSlots = copySlots(slots)
	next.BookedSlot = nil
	next.ConfirmedByThirdParty = false
	next.Declined = false
	next.UpdatedAt = now
	n.req = next
	return nil
}

// SuggestAlternative answers an incoming or expired request with one to
// MaxCandidates new slots from by. The record keeps its identity.
func (n *Negotiation) SuggestAlternative(by string, slots []model.Slot, now time.Time) error {
	if by == "" {
		return ErrPartyRequired
	}
	from := n.State(by, now)
	switch from {
	case StateRequestedByOther, StateExpired:
	case StateRequestedByMe:
		// A retried suggestion already landed.
		if model.SameSlots(n.req.CandidateSlots, slots) {
			return nil
		}
		return &InvalidTransitionError{Op: ActionSuggest, From: from}
	default:
		return &InvalidTransitionError{Op: ActionSuggest, From: from}
	}
	if err := checkSlots(slots, 1, MaxCandidates, now); err != nil {
		return err
	}

	next := n.req.Clone()
	next.RequestedBy = by
	next.CandidateSlots = copySlots(slots)
	next.BookedSlot = nil
	next.ConfirmedByThirdParty = false
	next.Declined = false
	next.UpdatedAt = now
	n.req = next
	return nil
}

// Respond books chosen, which must be one of the candidates the other party
// offered to viewer.
func (n *Negotiation) Respond(viewer string, chosen model.Slot, now time.Time) error {
	if viewer == "" {
		return ErrPartyRequired
	}
	from := n.State(viewer, now)
	switch from {
	case StateRequestedByOther:
	case StateBookedAwaitingConfirmation, StateConfirmed:
		if n.req.BookedSlot.Equal(chosen) {
			return nil
		}
		return &InvalidTransitionError{Op: ActionRespond, From: from}
	default:
		return &InvalidTransitionError{Op: ActionRespond, From: from}
	}

	var booked *model.Slot
	for _, c := range n.req.CandidateSlots {
		if c.Equal(chosen) {
			picked := c
			booked = &picked
			break
		}
	}
	if booked == nil {
		return &InvalidSlotError{Slot: chosen, Reason: "not one of the offered candidates"}
	}
	if calendar.IsPast(booked.Start, now) {
		return &PastSlotError{Slot: *booked, Now: now}
	}

	next := n.req.Clone()
	next.BookedSlot = booked
	next.UpdatedAt = now
	n.req = next
	return nil
}

// ConfirmByThirdParty finalizes a booked meeting. Confirming twice is a no-op.
func (n *Negotiation) ConfirmByThirdParty(now time.Time) error {
	from := n.State("", now)
	switch from {
	case StateConfirmed:
		return nil
	case StateBookedAwaitingConfirmation:
	default:
		return &InvalidTransitionError{Op: ActionConfirm, From: from}
	}
	next := n.req.Clone()
	next.ConfirmedByThirdParty = true
	next.UpdatedAt = now
	n.req = next
	return nil
}

// Decline rejects the negotiation on behalf of viewer.
func (n *Negotiation) Decline(viewer string, now time.Time) error {
	from := n.State(viewer, now)
	switch from {
	case StateDeclined:
		return nil
	case StateRequestedByMe, StateRequestedByOther, StateBookedAwaitingConfirmation, StateExpired:
	default:
		return &InvalidTransitionError{Op: ActionDecline, From: from}
	}
	next := n.req.Clone()
	next.Declined = true
	next.UpdatedAt = now
	n.req = next
	return nil
}

// CancelBooked drops a booked or confirmed meeting and retires the record.
// Renegotiating needs a fresh Request.
func (n *Negotiation) CancelBooked(now time.Time) error {
	from := n.State("", now)
	switch from {
	case StateBookedAwaitingConfirmation, StateConfirmed:
	case StateNoMeeting:
		if n.req != nil && n.req.Retired {
			return nil
		}
		return &InvalidTransitionError{Op: ActionCancel, From: from}
	default:
		return &InvalidTransitionError{Op: ActionCancel, From: from}
	}
	next := n.req.Clone()
	next.BookedSlot = nil
	next.ConfirmedByThirdParty = false
	next.CandidateSlots = nil
	next.Retired = true
	next.UpdatedAt = now
	n.req = next
	return nil
}

// RetireForStage retires the record once the proposal reaches a closed
// stage. It reports whether anything changed.
func (n *Negotiation) RetireForStage(stage model.ProposalStage, now time.Time) bool {
	if !stage.IsClosed() || n.req == nil || n.req.Retired {
		return false
	}
	next := n.req.Clone()
	next.Retired = true
	next.UpdatedAt = now
	n.req = next
	return true
}

func checkSlots(slots []model.Slot, min, max int, now time.Time) error {
	if len(slots) < min || len(slots) > max {
		return &InvalidCandidateCountError{Got: len(slots), Min: min, Max: max}
	}
	for i, s := range slots {
		if s.IsZero() || s.Zone == "" {
			return &InvalidSlotError{Slot: s, Reason: "missing time or timezone"}
		}
		if model.ContainsSlot(slots[:i], s) {
			return &InvalidSlotError{Slot: s, Reason: "duplicate candidate"}
		}
		if calendar.IsPast(s.Start, now) {
			return &PastSlotError{Slot: s, Now: now}
		}
	}
	return nil
}

func copySlots(slots []model.Slot) []model.Slot {
	out := make([]model.Slot, len(slots))
	copy(out, slots)
	return out
}
