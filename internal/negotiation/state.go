// Package negotiation implements the two-party virtual-meeting negotiation
// attached to a rental proposal.
//
// The stored record (model.MeetingRequest) holds facts only. The state a
// party sees is derived from those facts, the viewer's identity and a
// caller-supplied "now" every time it is needed; it is never stored or
// cached, so callers must re-derive it after each write.
package negotiation

import (
	"time"

	"leasesched/internal/calendar"
	"leasesched/internal/model"
)

// State is the negotiation state as seen by one viewer.
type State string

const (
	// StateNoMeeting means no request exists, or the last one was retired.
	StateNoMeeting State = "no_meeting"
	// StateRequestedByMe means the viewer proposed slots and awaits the other party.
	StateRequestedByMe State = "requested_by_me"
	// StateRequestedByOther means the other party proposed slots and awaits the viewer.
	StateRequestedByOther State = "requested_by_other"
	// StateBookedAwaitingConfirmation means a slot was chosen and awaits third-party confirmation.
	StateBookedAwaitingConfirmation State = "booked_awaiting_confirmation"
	// StateConfirmed means the booked slot was confirmed.
	StateConfirmed State = "confirmed"
	// StateDeclined means either party rejected the negotiation.
	StateDeclined State = "declined"
	// StateExpired means every candidate slot passed before one was booked.
	StateExpired State = "expired"
)

// ValidStates returns every state.
func ValidStates() []State {
	return []State{
		StateNoMeeting,
		StateRequestedByMe,
		StateRequestedByOther,
		StateBookedAwaitingConfirmation,
		StateConfirmed,
		StateDeclined,
		StateExpired,
	}
}

func (s State) String() string { return string(s) }

// IsValid returns true if s is one of ValidStates.
func (s State) IsValid() bool {
	switch s {
	case StateNoMeeting, StateRequestedByMe, StateRequestedByOther,
		StateBookedAwaitingConfirmation, StateConfirmed, StateDeclined, StateExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no party can move the negotiation forward
// without starting over. Declined can still be superseded by a new request.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateDeclined
}

// Action is an operation a party can invoke on a negotiation.
type Action string

const (
	ActionRequest Action = "request"
	ActionRespond Action = "respond"
	ActionConfirm Action = "confirm"
	ActionDecline Action = "decline"
	ActionSuggest Action = "suggest"
	ActionCancel  Action = "cancel"
)

// AvailableActions returns the actions that are valid in this state.
func (s State) AvailableActions() []Action {
	switch s {
	case StateNoMeeting, StateDeclined:
		return []Action{ActionRequest}
	case StateRequestedByMe:
		return []Action{ActionRequest, ActionDecline}
	case StateRequestedByOther:
		return []Action{ActionRespond, ActionSuggest, ActionDecline}
	case StateBookedAwaitingConfirmation:
		return []Action{ActionConfirm, ActionDecline, ActionCancel}
	case StateConfirmed:
		return []Action{ActionCancel}
	case StateExpired:
		return []Action{ActionRequest, ActionSuggest, ActionDecline}
	default:
		return []Action{}
	}
}

// HasAction returns true if the given action is available in this state.
func (s State) HasAction(a Action) bool {
	for _, v := range s.AvailableActions() {
		if v == a {
			return true
		}
	}
	return false
}

// Derive computes the state of req as seen by viewer at now.
//
// Precedence: declined, retired, booked (confirmed or awaiting), no
// candidates, expired, then requested by me/other. Expired therefore wins
// over the requested states but never over a booked or declined record.
// Exactly one state is returned for every input.
func Derive(req *model.MeetingRequest, viewer string, now time.Time) State {
	switch {
	case req == nil:
		return StateNoMeeting
	case req.Declined:
		return StateDeclined
	case req.Retired:
		return StateNoMeeting
	case req.BookedSlot != nil && req.ConfirmedByThirdParty:
		return StateConfirmed
	case req.BookedSlot != nil:
		return StateBookedAwaitingConfirmation
	case len(req.CandidateSlots) == 0:
		return StateNoMeeting
	case allPast(req.CandidateSlots, now):
		return StateExpired
	case req.RequestedBy == viewer:
		return StateRequestedByMe
	default:
		return StateRequestedByOther
	}
}

func allPast(slots []model.Slot, now time.Time) bool {
	for _, s := range slots {
		if !calendar.IsPast(s.Start, now) {
			return false
		}
	}
	return true
}
