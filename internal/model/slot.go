package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Slot is a meeting date-time with an explicit IANA timezone.
//
// Start always carries the location named by Zone, so formatting a slot
// shows the wall clock the proposing party picked. Comparisons use the
// instant only.
type Slot struct {
	Start time.Time
	Zone  string
}

// NewSlot places t in the named zone.
func NewSlot(t time.Time, zone string) (Slot, error) {
	if zone == "" {
		return Slot{}, errors.New("slot: timezone is empty")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Slot{}, fmt.Errorf("slot: load timezone %q: %w", zone, err)
	}
	return Slot{Start: t.In(loc), Zone: zone}, nil
}

// SlotIn is like NewSlot for an already-resolved location.
func SlotIn(t time.Time, loc *time.Location) Slot {
	return Slot{Start: t.In(loc), Zone: loc.String()}
}

// Equal reports whether both slots denote the same instant.
func (s Slot) Equal(o Slot) bool { return s.Start.Equal(o.Start) }

func (s Slot) IsZero() bool { return s.Start.IsZero() }

func (s Slot) String() string {
	return s.Start.Format(time.RFC3339) + " " + s.Zone
}

type slotJSON struct {
	Start    time.Time `json:"start"`
	Timezone string    `json:"timezone"`
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{Start: s.Start, Timezone: s.Zone})
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw slotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	zone := raw.Timezone
	if zone == "" {
		zone = "UTC"
	}
	out, err := NewSlot(raw.Start, zone)
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// ContainsSlot reports whether slots holds an instant equal to s.
func ContainsSlot(slots []Slot, s Slot) bool {
	for _, c := range slots {
		if c.Equal(s) {
			return true
		}
	}
	return false
}

// SameSlots reports whether a and b hold the same instants in the same order.
func SameSlots(a, b []Slot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
