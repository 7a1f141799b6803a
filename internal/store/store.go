// Package store persists availability sets and meeting records. The
// scheduling core never calls it; application handlers load a record, run a
// transition and save the result. Concurrent writers to one key get
// last-write-wins.
package store

import (
	"context"
	"errors"
	"time"

	"leasesched/internal/model"
)

// ErrNotFound is returned when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// AvailabilityStore loads and saves the night selection of a listing.
type AvailabilityStore interface {
	LoadAvailability(ctx context.Context, listingID string) (Availability, error)
	SaveAvailability(ctx context.Context, a Availability) error
}

// MeetingStore loads and saves the meeting record of a proposal.
type MeetingStore interface {
	LoadMeeting(ctx context.Context, proposalID string) (*model.MeetingRequest, error)
	SaveMeeting(ctx context.Context, req *model.MeetingRequest) error
	ListMeetings(ctx context.Context) ([]*model.MeetingRequest, error)
}

// Availability is the stored selection of one listing.
type Availability struct {
	ListingID string                `json:"listing_id"`
	Days      model.AvailabilitySet `json:"days"`
	UpdatedAt time.Time             `json:"updated_at"`
}
