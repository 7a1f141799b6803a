package web

import (
	"errors"
	"net/http"

	"leasesched/internal/ingest"
	appLog "leasesched/internal/log"
	"leasesched/internal/negotiation"
	"leasesched/internal/selection"
	"leasesched/internal/store"
)

// classify maps an error to an HTTP status and a short kind the UI can
// switch on.
func classify(err error) (int, string) {
	var (
		transition *negotiation.InvalidTransitionError
		count      *negotiation.InvalidCandidateCountError
		past       *negotiation.PastSlotError
		slot       *negotiation.InvalidSlotError
		validation *selection.ValidationError
		minimum    *selection.BelowMinimumNightsError
		field      *ingest.FieldError
	)
	switch {
	case errors.As(err, &transition):
		return http.StatusConflict, "invalid_transition"
	case errors.As(err, &count):
		return http.StatusUnprocessableEntity, "invalid_candidate_count"
	case errors.As(err, &past):
		return http.StatusUnprocessableEntity, "past_slot"
	case errors.As(err, &slot):
		return http.StatusUnprocessableEntity, "invalid_slot"
	case errors.As(err, &minimum):
		return http.StatusUnprocessableEntity, "below_minimum_nights"
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.As(err, &field):
		return http.StatusUnprocessableEntity, "invalid_field"
	case errors.Is(err, negotiation.ErrPartyRequired):
		return http.StatusUnprocessableEntity, "party_required"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeFailure renders err. Invalid transitions point at a caller bug and
// server errors at ours; both are logged.
func writeFailure(w http.ResponseWriter, op string, err error, kv ...any) {
	status, kind := classify(err)
	msg := err.Error()
	switch {
	case status == http.StatusConflict:
		appLog.Warn("rejected state transition", append([]any{"op", op, "err", err}, kv...)...)
	case status >= http.StatusInternalServerError:
		appLog.Error(op+" failed", err, kv...)
		msg = op + " failed"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
