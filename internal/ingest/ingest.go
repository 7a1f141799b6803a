// Package ingest turns loosely shaped records from older clients into the
// canonical model types. The same logical field may arrive as camelCase,
// "space case" or snake_case; keys are folded here once so nothing past
// this boundary ever looks at naming variants.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leasesched/internal/model"
	"leasesched/internal/negotiation"
)

// FieldError reports a field that is present but cannot be interpreted.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

var ErrMissingField = errors.New("required field missing")

// CanonicalKey folds a field name so that "proposalId", "Proposal ID" and
// "proposal_id" all compare equal.
func CanonicalKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(k) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// record is a raw object with canonical keys.
type record map[string]any

func fold(raw map[string]any) record {
	out := make(record, len(raw))
	for k, v := range raw {
		out[CanonicalKey(k)] = v
	}
	return out
}

// lookup returns the first non-nil value stored under any alias.
func (r record) lookup(aliases ...string) (any, string, bool) {
	for _, a := range aliases {
		if v, ok := r[a]; ok && v != nil {
			return v, a, true
		}
	}
	return nil, "", false
}

func (r record) str(aliases ...string) (string, error) {
	v, key, ok := r.lookup(aliases...)
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", &FieldError{Field: key, Err: fmt.Errorf("unexpected %T", v)}
	}
}

func (r record) boolean(aliases ...string) (bool, error) {
	v, key, ok := r.lookup(aliases...)
	if !ok {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0", "":
			return false, nil
		}
	}
	return false, &FieldError{Field: key, Err: fmt.Errorf("not a boolean: %v", v)}
}

var (
	idKeys          = []string{"id", "meetingid", "uniqueid"}
	proposalKeys    = []string{"proposalid", "proposal"}
	requestedByKeys = []string{"requestedby", "requester", "requestedbyuser"}
	candidateKeys   = []string{"candidateslots", "suggesteddatesandtimes", "suggesteddates", "slots"}
	bookedKeys      = []string{"bookedslot", "bookeddate", "bookeddateandtime"}
	confirmedKeys   = []string{"confirmedbythirdparty", "confirmedbysplitlease", "confirmed"}
	declinedKeys    = []string{"declined", "meetingdeclined"}
	retiredKeys     = []string{"retired"}
	statusKeys      = []string{"status", "meetingstatus"}
	timezoneKeys    = []string{"timezone", "tz", "zone"}
	createdKeys     = []string{"createdat", "createddate", "created"}
	updatedKeys     = []string{"updatedat", "modifieddate", "modified"}
	daysKeys        = []string{"days", "daysavailable", "availabledays", "selecteddays", "nightsavailable", "nights"}
)

// NormalizeMeeting converts a raw meeting object into a MeetingRequest.
// Slot timestamps without an explicit zone take the record's timezone
// field, or UTC. A legacy status string, when present, is folded into the
// Declined, ConfirmedByThirdParty and Retired facts.
func NormalizeMeeting(raw map[string]any) (model.MeetingRequest, error) {
	r := fold(raw)
	var out model.MeetingRequest
	var err error

	if out.ID, err = r.str(idKeys...); err != nil {
		return out, err
	}
	if out.ProposalID, err = r.str(proposalKeys...); err != nil {
		return out, err
	}
	if out.ProposalID == "" {
		return out, &FieldError{Field: "proposal_id", Err: ErrMissingField}
	}
	if out.RequestedBy, err = r.str(requestedByKeys...); err != nil {
		return out, err
	}

	zone, err := r.str(timezoneKeys...)
	if err != nil {
		return out, err
	}
	if zone == "" {
		zone = "UTC"
	}

	if v, key, ok := r.lookup(candidateKeys...); ok {
		items, ok := v.([]any)
		if !ok {
			return out, &FieldError{Field: key, Err: fmt.Errorf("expected a list, got %T", v)}
		}
		for i, item := range items {
			s, err := parseSlot(item, zone)
			if err != nil {
				return out, &FieldError{Field: fmt.Sprintf("%s[%d]", key, i), Err: err}
			}
			out.CandidateSlots = append(out.CandidateSlots, s)
		}
	}
	if v, key, ok := r.lookup(bookedKeys...); ok {
		s, err := parseSlot(v, zone)
		if err != nil {
			return out, &FieldError{Field: key, Err: err}
		}
		out.BookedSlot = &s
	}

	if out.ConfirmedByThirdParty, err = r.boolean(confirmedKeys...); err != nil {
		return out, err
	}
	if out.Declined, err = r.boolean(declinedKeys...); err != nil {
		return out, err
	}
	if out.Retired, err = r.boolean(retiredKeys...); err != nil {
		return out, err
	}

	status, err := r.str(statusKeys...)
	if err != nil {
		return out, err
	}
	if status != "" {
		l := negotiation.ParseLegacyStatus(status)
		out.Declined = out.Declined || l.Declined
		out.Retired = out.Retired || l.Cancelled
		if out.BookedSlot != nil {
			out.ConfirmedByThirdParty = out.ConfirmedByThirdParty || l.Confirmed
		}
	}

	if out.CreatedAt, err = r.timestamp(createdKeys...); err != nil {
		return out, err
	}
	if out.UpdatedAt, err = r.timestamp(updatedKeys...); err != nil {
		return out, err
	}
	return out, nil
}

// NormalizeAvailability reads the selected weekdays from a raw listing or
// proposal object. Days may be indices (0=Sunday) or names, given as a list
// or a comma separated string.
func NormalizeAvailability(raw map[string]any) (model.AvailabilitySet, error) {
	r := fold(raw)
	v, key, ok := r.lookup(daysKeys...)
	if !ok {
		return 0, &FieldError{Field: "days", Err: ErrMissingField}
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		return 0, &FieldError{Field: key, Err: fmt.Errorf("expected a list, got %T", v)}
	}

	var set model.AvailabilitySet
	for i, item := range items {
		d, err := parseDay(item)
		if err != nil {
			return 0, &FieldError{Field: fmt.Sprintf("%s[%d]", key, i), Err: err}
		}
		set = set.With(d)
	}
	return set, nil
}

// DecodeMeeting parses a JSON object and normalizes it.
func DecodeMeeting(data []byte) (model.MeetingRequest, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return model.MeetingRequest{}, err
	}
	return NormalizeMeeting(raw)
}

// DecodeMeetingStatus returns the free-text status a raw meeting object
// carries, or "" when it has none.
func DecodeMeetingStatus(data []byte) (string, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return "", err
	}
	return fold(raw).str(statusKeys...)
}

// DecodeAvailability parses a JSON object and normalizes its weekdays.
func DecodeAvailability(data []byte) (model.AvailabilitySet, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return 0, err
	}
	return NormalizeAvailability(raw)
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode object: null body")
	}
	return raw, nil
}

func parseDay(v any) (model.Weekday, error) {
	switch t := v.(type) {
	case string:
		return model.ParseWeekday(t)
	case json.Number:
		return model.ParseWeekday(t.String())
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("weekday index %v is not an integer", t)
		}
		return model.ParseWeekday(strconv.Itoa(int(t)))
	case int:
		return model.ParseWeekday(strconv.Itoa(t))
	default:
		return 0, fmt.Errorf("unexpected weekday %T", v)
	}
}

// parseSlot accepts an RFC 3339 string or an object with start and
// timezone fields under any naming variant.
func parseSlot(v any, zone string) (model.Slot, error) {
	switch t := v.(type) {
	case string:
		return slotAt(t, zone)
	case map[string]any:
		r := fold(t)
		start, err := r.str("start", "datetime", "date", "time")
		if err != nil {
			return model.Slot{}, err
		}
		if start == "" {
			return model.Slot{}, errors.New("slot has no start")
		}
		if z, _ := r.str(timezoneKeys...); z != "" {
			zone = z
		}
		return slotAt(start, zone)
	default:
		return model.Slot{}, fmt.Errorf("unexpected slot %T", v)
	}
}

func (r record) timestamp(aliases ...string) (time.Time, error) {
	s, err := r.str(aliases...)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	ts, err := parseTime(s, time.UTC)
	if err != nil {
		return time.Time{}, &FieldError{Field: aliases[0], Err: err}
	}
	return ts, nil
}

// slotAt parses value as a wall clock in zone unless it carries its own offset.
func slotAt(value, zone string) (model.Slot, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return model.Slot{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	ts, err := parseTime(value, loc)
	if err != nil {
		return model.Slot{}, err
	}
	return model.NewSlot(ts, zone)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
