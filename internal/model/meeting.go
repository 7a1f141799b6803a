package model

import "time"

// MeetingRequest is the stored record of one virtual-meeting negotiation
// attached to a proposal. It holds facts only; the negotiation state is
// always derived from it (see internal/negotiation).
type MeetingRequest struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`

	// RequestedBy identifies the party that proposed CandidateSlots.
	RequestedBy string `json:"requested_by"`

	// CandidateSlots are the 1-3 alternatives offered by RequestedBy.
	CandidateSlots []Slot `json:"candidate_slots"`

	// BookedSlot is set once the responder picks one candidate.
	BookedSlot *Slot `json:"booked_slot,omitempty"`

	// ConfirmedByThirdParty records the independent finalization step.
	ConfirmedByThirdParty bool `json:"confirmed_by_third_party"`

	Declined bool `json:"declined"`

	// Retired marks a record that no longer takes part in negotiation,
	// either after a booked meeting was cancelled or after the proposal closed.
	Retired bool `json:"retired"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it freely.
func (r *MeetingRequest) Clone() *MeetingRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.CandidateSlots != nil {
		out.CandidateSlots = append([]Slot(nil), r.CandidateSlots...)
	}
	if r.BookedSlot != nil {
		b := *r.BookedSlot
		out.BookedSlot = &b
	}
	return &out
}
