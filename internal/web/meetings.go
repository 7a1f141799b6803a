package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"

	"github.com/google/uuid"

	"leasesched/internal/ingest"
	"leasesched/internal/invite"
	appLog "leasesched/internal/log"
	"leasesched/internal/model"
	"leasesched/internal/negotiation"
	"leasesched/internal/notify"
	"leasesched/internal/retry"
	"leasesched/internal/store"
)

type meetingResponse struct {
	ProposalID string                `json:"proposal_id"`
	Viewer     string                `json:"viewer"`
	State      negotiation.State     `json:"state"`
	Actions    []negotiation.Action  `json:"actions"`
	Meeting    *model.MeetingRequest `json:"meeting,omitempty"`

	// Notification is set on writes that announced a change.
	Notification *notificationView `json:"notification,omitempty"`
}

type notificationView struct {
	Kind     notify.Kind `json:"kind"`
	OK       bool        `json:"ok"`
	Attempts int         `json:"attempts"`
	Error    string      `json:"error,omitempty"`
}

// actionRequest is the body of POST /api/proposals/{id}/meeting/{action}.
// Slots are {"start": RFC 3339, "timezone": IANA zone}.
type actionRequest struct {
	Viewer string       `json:"viewer"`
	Slots  []model.Slot `json:"slots,omitempty"`
	Slot   *model.Slot  `json:"slot,omitempty"`
}

// loadNegotiation returns the negotiation of a proposal, empty if none is stored.
func (s *Server) loadNegotiation(ctx context.Context, proposalID string) (*negotiation.Negotiation, error) {
	req, err := s.deps.Meetings.LoadMeeting(ctx, proposalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return negotiation.Load(proposalID, req)
}

func (s *Server) view(n *negotiation.Negotiation, viewer string) meetingResponse {
	state := n.State(viewer, s.now())
	return meetingResponse{
		ProposalID: n.ProposalID(),
		Viewer:     viewer,
		State:      state,
		Actions:    state.AvailableActions(),
		Meeting:    n.Record(),
	}
}

// handleGetMeeting derives the negotiation state for one viewer.
//
// GET /api/proposals/{id}/meeting?viewer=guest-42
func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	viewer := r.URL.Query().Get("viewer")
	if viewer == "" {
		writeFailure(w, "get meeting", negotiation.ErrPartyRequired)
		return
	}
	n, err := s.loadNegotiation(r.Context(), id)
	if err != nil {
		writeFailure(w, "load meeting", err, "proposal_id", id)
		return
	}
	writeJSON(w, http.StatusOK, s.view(n, viewer))
}

type importResponse struct {
	meetingResponse

	// LegacyStatus echoes the free-text status of the imported record and
	// LegacyState is what that text claims, for comparison with State.
	LegacyStatus string            `json:"legacy_status,omitempty"`
	LegacyState  negotiation.State `json:"legacy_state,omitempty"`
}

// handleImportMeeting stores a meeting record handed over by an older
// client. Field names may use any naming variant; the record is normalized
// here and nowhere else. Nothing is announced.
//
// PUT /api/proposals/{id}/meeting?viewer=host-7
func (s *Server) handleImportMeeting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	rec, err := ingest.DecodeMeeting(body)
	if err != nil {
		var fe *ingest.FieldError
		if errors.As(err, &fe) {
			writeFailure(w, "decode meeting", err, "proposal_id", id)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec.ProposalID != id {
		writeError(w, http.StatusUnprocessableEntity, "proposal id does not match the path")
		return
	}
	status, err := ingest.DecodeMeetingStatus(body)
	if err != nil {
		writeFailure(w, "decode meeting", err, "proposal_id", id)
		return
	}

	now := s.now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	viewer := r.URL.Query().Get("viewer")
	if viewer == "" {
		viewer = rec.RequestedBy
	}

	mu := s.lock("proposal:" + id)
	mu.Lock()
	defer mu.Unlock()

	ctx := r.Context()
	res := retry.Do(ctx, s.cfg.Retry, "save meeting "+id, func(ctx context.Context) error {
		return s.deps.Meetings.SaveMeeting(ctx, &rec)
	})
	if !res.OK() {
		writeFailure(w, "save meeting", res.Err, "proposal_id", id)
		return
	}
	appLog.Info("meeting imported", "proposal_id", id, "meeting_id", rec.ID, "legacy_status", status)

	stored, err := s.loadNegotiation(ctx, id)
	if err != nil {
		writeFailure(w, "reload meeting", err, "proposal_id", id)
		return
	}
	resp := importResponse{meetingResponse: s.view(stored, viewer), LegacyStatus: status}
	if status != "" {
		if st, ok := negotiation.StateFromLegacy(status, viewer != "" && viewer == rec.RequestedBy); ok {
			resp.LegacyState = st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMeetingAction runs one transition, stores the result, announces
// it and answers with the state re-derived from the stored record.
// Repeating an action whose effect is already stored changes nothing and
// sends nothing.
func (s *Server) handleMeetingAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := negotiation.Action(r.PathValue("action"))

	// confirm and cancel need no body.
	var body actionRequest
	if err := decodeBody(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mu := s.lock("proposal:" + id)
	mu.Lock()
	defer mu.Unlock()

	ctx := r.Context()
	n, err := s.loadNegotiation(ctx, id)
	if err != nil {
		writeFailure(w, "load meeting", err, "proposal_id", id)
		return
	}
	before := n.Record()
	now := s.now()

	var kind notify.Kind
	switch action {
	case negotiation.ActionRequest:
		kind, err = notify.KindRequested, n.Request(body.Viewer, body.Slots, now)
	case negotiation.ActionSuggest:
		kind, err = notify.KindSuggested, n.SuggestAlternative(body.Viewer, body.Slots, now)
	case negotiation.ActionRespond:
		if body.Slot == nil {
			writeError(w, http.StatusUnprocessableEntity, "respond needs a slot")
			return
		}
		kind, err = notify.KindBooked, n.Respond(body.Viewer, *body.Slot, now)
	case negotiation.ActionConfirm:
		kind, err = notify.KindConfirmed, n.ConfirmByThirdParty(now)
	case negotiation.ActionDecline:
		kind, err = notify.KindDeclined, n.Decline(body.Viewer, now)
	case negotiation.ActionCancel:
		kind, err = notify.KindCancelled, n.CancelBooked(now)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		writeFailure(w, string(action), err, "proposal_id", id, "viewer", body.Viewer)
		return
	}

	after := n.Record()
	if reflect.DeepEqual(before, after) {
		appLog.Debug("meeting action already applied", "proposal_id", id, "action", action)
		writeJSON(w, http.StatusOK, s.view(n, body.Viewer))
		return
	}

	res := retry.Do(ctx, s.cfg.Retry, "save meeting "+id, func(ctx context.Context) error {
		return s.deps.Meetings.SaveMeeting(ctx, after)
	})
	if !res.OK() {
		writeFailure(w, "save meeting", res.Err, "proposal_id", id)
		return
	}
	appLog.Info("meeting transition", "proposal_id", id, "action", action, "viewer", body.Viewer)

	// The invite for a cancellation describes the slot that was booked.
	announced := after
	if kind == notify.KindCancelled {
		announced = before
	}
	sent := s.deps.Notifier.Dispatch(ctx, notify.Event{
		Kind:       kind,
		ProposalID: id,
		Actor:      body.Viewer,
		Request:    announced,
		At:         now,
	})

	stored, err := s.loadNegotiation(ctx, id)
	if err != nil {
		writeFailure(w, "reload meeting", err, "proposal_id", id)
		return
	}
	resp := s.view(stored, body.Viewer)
	resp.Notification = &notificationView{Kind: kind, OK: sent.OK(), Attempts: len(sent.Attempts)}
	if sent.Err != nil {
		resp.Notification.Error = sent.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type stageRequest struct {
	Status string `json:"status"`
}

type stageResponse struct {
	Stage   string `json:"stage"`
	Closed  bool   `json:"closed"`
	Retired bool   `json:"retired"`
}

// handleStage reports a proposal status change from the proposal workflow.
// A closed stage retires the meeting record.
//
// POST /api/proposals/{id}/stage  {"status": "Proposal Cancelled by Guest"}
func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body stageRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	stage := model.StageFromLegacy(body.Status)

	mu := s.lock("proposal:" + id)
	mu.Lock()
	defer mu.Unlock()

	ctx := r.Context()
	n, err := s.loadNegotiation(ctx, id)
	if err != nil {
		writeFailure(w, "load meeting", err, "proposal_id", id)
		return
	}
	retired := n.RetireForStage(stage, s.now())
	if retired {
		res := retry.Do(ctx, s.cfg.Retry, "save meeting "+id, func(ctx context.Context) error {
			return s.deps.Meetings.SaveMeeting(ctx, n.Record())
		})
		if !res.OK() {
			writeFailure(w, "save meeting", res.Err, "proposal_id", id)
			return
		}
		appLog.Info("meeting retired with proposal", "proposal_id", id, "stage", stage)
	}
	writeJSON(w, http.StatusOK, stageResponse{Stage: stage.String(), Closed: stage.IsClosed(), Retired: retired})
}

// handleInvite serves the calendar invite of a booked meeting.
func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.loadNegotiation(r.Context(), id)
	if err != nil {
		writeFailure(w, "load meeting", err, "proposal_id", id)
		return
	}
	rec := n.Record()
	now := s.now()
	opts := InviteOptions(s.cfg)(notify.Event{ProposalID: id, Request: rec, At: now})
	body, err := invite.Build(rec, opts)
	if errors.Is(err, invite.ErrNotBooked) {
		writeError(w, http.StatusNotFound, "meeting is not booked")
		return
	}
	if err != nil {
		writeFailure(w, "build invite", err, "proposal_id", id)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meeting.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
