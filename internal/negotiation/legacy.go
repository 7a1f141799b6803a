package negotiation

import "strings"

// LegacyStatus is what a free-text meeting status from older records says
// about the negotiation. The requester's identity is not part of those
// strings, so Requested does not distinguish "me" from "other".
type LegacyStatus struct {
	Known     bool
	Requested bool
	Booked    bool
	Confirmed bool
	Declined  bool
	Cancelled bool
	Expired   bool
}

// legacyStatuses is checked in order and the first matching fragment wins.
// Negated and terminal phrases come before the generic words they contain.
var legacyStatuses = []struct {
	fragment string
	status   LegacyStatus
}{
	{"not confirmed", LegacyStatus{Known: true, Booked: true}},
	{"unconfirmed", LegacyStatus{Known: true, Booked: true}},
	{"awaiting confirmation", LegacyStatus{Known: true, Booked: true}},
	{"cancel", LegacyStatus{Known: true, Cancelled: true}},
	{"declin", LegacyStatus{Known: true, Declined: true}},
	{"reject", LegacyStatus{Known: true, Declined: true}},
	{"confirmed", LegacyStatus{Known: true, Booked: true, Confirmed: true}},
	{"booked", LegacyStatus{Known: true, Booked: true}},
	{"accepted", LegacyStatus{Known: true, Booked: true}},
	{"expir", LegacyStatus{Known: true, Expired: true}},
	{"suggest", LegacyStatus{Known: true, Requested: true}},
	{"request", LegacyStatus{Known: true, Requested: true}},
	{"pending", LegacyStatus{Known: true, Requested: true}},
	{"no meeting", LegacyStatus{Known: true}},
	{"none", LegacyStatus{Known: true}},
}

// ParseLegacyStatus maps a legacy status string to facts. Unrecognized
// input yields a zero LegacyStatus with Known false.
//
// This is the only place meeting statuses are matched as text.
func ParseLegacyStatus(status string) LegacyStatus {
	v := strings.ToLower(strings.TrimSpace(status))
	v = strings.NewReplacer("_", " ", "-", " ").Replace(v)
	if v == "" {
		return LegacyStatus{}
	}
	for _, l := range legacyStatuses {
		if strings.Contains(v, l.fragment) {
			return l.status
		}
	}
	return LegacyStatus{}
}

// StateFromLegacy maps a legacy status string to a State. viewerRequested
// tells whether the viewer is the party that made the pending request.
// Canonical state names are accepted as-is.
func StateFromLegacy(status string, viewerRequested bool) (State, bool) {
	if s := State(strings.ToLower(strings.TrimSpace(status))); s.IsValid() {
		return s, true
	}
	l := ParseLegacyStatus(status)
	switch {
	case !l.Known:
		return StateNoMeeting, false
	case l.Declined:
		return StateDeclined, true
	case l.Cancelled:
		return StateNoMeeting, true
	case l.Confirmed:
		return StateConfirmed, true
	case l.Booked:
		return StateBookedAwaitingConfirmation, true
	case l.Expired:
		return StateExpired, true
	case l.Requested && viewerRequested:
		return StateRequestedByMe, true
	case l.Requested:
		return StateRequestedByOther, true
	default:
		return StateNoMeeting, true
	}
}
