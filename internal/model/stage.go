package model

import "strings"

// ProposalStage is the lifecycle stage of the rental proposal a meeting
// belongs to.
type ProposalStage string

const (
	StageUnknown             ProposalStage = "unknown"
	StageSubmitted           ProposalStage = "submitted"
	StageHostReview          ProposalStage = "host_review"
	StageCounterOffer        ProposalStage = "counter_offer"
	StageAccepted            ProposalStage = "accepted"
	StageLeaseDocuments      ProposalStage = "lease_documents"
	StageActive              ProposalStage = "active"
	StageCancelledByGuest    ProposalStage = "cancelled_by_guest"
	StageRejectedByHost      ProposalStage = "rejected_by_host"
	StageCancelledByPlatform ProposalStage = "cancelled_by_platform"
)

// ValidStages returns every known stage except StageUnknown.
func ValidStages() []ProposalStage {
	return []ProposalStage{
		StageSubmitted,
		StageHostReview,
		StageCounterOffer,
		StageAccepted,
		StageLeaseDocuments,
		StageActive,
		StageCancelledByGuest,
		StageRejectedByHost,
		StageCancelledByPlatform,
	}
}

func (s ProposalStage) String() string { return string(s) }

// IsValid reports whether s is a known stage (StageUnknown is not).
func (s ProposalStage) IsValid() bool {
	for _, v := range ValidStages() {
		if s == v {
			return true
		}
	}
	return false
}

// IsClosed reports whether the proposal can no longer move forward.
func (s ProposalStage) IsClosed() bool {
	switch s {
	case StageCancelledByGuest, StageRejectedByHost, StageCancelledByPlatform:
		return true
	default:
		return false
	}
}

// legacyStages maps fragments of the free-text statuses written by older
// clients to stages. Order matters: the first matching fragment wins, so the
// terminal statuses are checked before the generic ones they contain.
var legacyStages = []struct {
	fragment string
	stage    ProposalStage
}{
	{"cancelled by split lease", StageCancelledByPlatform},
	{"cancelled by platform", StageCancelledByPlatform},
	{"cancelled by guest", StageCancelledByGuest},
	{"rejected by host", StageRejectedByHost},
	{"lease activated", StageActive},
	{"initial payment submitted", StageActive},
	{"lease documents", StageLeaseDocuments},
	{"drafting lease", StageLeaseDocuments},
	{"counteroffer accepted", StageAccepted},
	{"proposal accepted", StageAccepted},
	{"counteroffer", StageCounterOffer},
	{"counter offer", StageCounterOffer},
	{"host review", StageHostReview},
	{"awaiting rental application", StageSubmitted},
	{"proposal submitted", StageSubmitted},
}

// StageFromLegacy maps a legacy status string to a stage. Canonical stage
// names are accepted as-is; anything unrecognized is StageUnknown.
//
// This is the only place proposal statuses are matched as text.
func StageFromLegacy(status string) ProposalStage {
	v := strings.ToLower(strings.TrimSpace(status))
	if v == "" {
		return StageUnknown
	}
	if s := ProposalStage(v); s.IsValid() {
		return s
	}
	for _, l := range legacyStages {
		if strings.Contains(v, l.fragment) {
			return l.stage
		}
	}
	return StageUnknown
}
