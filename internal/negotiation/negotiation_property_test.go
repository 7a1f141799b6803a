package negotiation

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"leasesched/internal/model"
)

type scenario struct {
	req    *model.MeetingRequest
	viewer string
}

// genScenario produces arbitrary combinations of stored facts, including
// ones no transition would write, with candidates spread around base.
func genScenario() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.IntRange(-120, 120),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.OneConstOf("host", "guest"),
	).Map(func(vals []interface{}) scenario {
		count := vals[0].(int)
		offset := time.Duration(vals[1].(int)) * time.Hour
		if vals[7].(bool) {
			return scenario{viewer: vals[8].(string)}
		}
		req := &model.MeetingRequest{
			ID:                    "m1",
			ProposalID:            "proposal-1",
			RequestedBy:           "host",
			ConfirmedByThirdParty: vals[3].(bool),
			Declined:              vals[4].(bool),
			Retired:               vals[5].(bool),
		}
		if !vals[6].(bool) {
			req.RequestedBy = "guest"
		}
		for i := 0; i < count; i++ {
			req.CandidateSlots = append(req.CandidateSlots,
				model.SlotIn(base.Add(offset+time.Duration(i)*24*time.Hour), nyc))
		}
		if vals[2].(bool) && count > 0 {
			b := req.CandidateSlots[0]
			req.BookedSlot = &b
		}
		return scenario{req: req, viewer: vals[8].(string)}
	})
}

// statePredicates restate the state table row by row.
func statePredicates(req *model.MeetingRequest, viewer string, now time.Time) map[State]bool {
	if req == nil {
		return map[State]bool{StateNoMeeting: true}
	}
	live := !req.Declined && !req.Retired
	open := live && req.BookedSlot == nil && len(req.CandidateSlots) > 0
	past := allPast(req.CandidateSlots, now)
	return map[State]bool{
		StateNoMeeting:                  !req.Declined && (req.Retired || (req.BookedSlot == nil && len(req.CandidateSlots) == 0)),
		StateDeclined:                   req.Declined,
		StateConfirmed:                  live && req.BookedSlot != nil && req.ConfirmedByThirdParty,
		StateBookedAwaitingConfirmation: live && req.BookedSlot != nil && !req.ConfirmedByThirdParty,
		StateExpired:                    open && past,
		StateRequestedByMe:              open && !past && req.RequestedBy == viewer,
		StateRequestedByOther:           open && !past && req.RequestedBy != viewer,
	}
}

// Property: for any record and viewer exactly one state holds, and it is
// the state Derive returns.
func TestStateExclusivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one state holds for every record and viewer", prop.ForAll(
		func(s scenario) bool {
			got := Derive(s.req, s.viewer, base)
			if !got.IsValid() {
				return false
			}
			holding := 0
			for state, ok := range statePredicates(s.req, s.viewer, base) {
				if ok {
					holding++
					if state != got {
						return false
					}
				}
			}
			return holding == 1
		},
		genScenario(),
	))

	properties.TestingRun(t)
}

// Property: confirming a booked meeting twice leaves the same Confirmed
// record as confirming it once.
func TestConfirmationIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("second confirmation changes nothing", prop.ForAll(
		func(pick int, delayMinutes int) bool {
			n, err := New("proposal-1")
			if err != nil {
				return false
			}
			if err := n.Request("host", threeSlots(), base); err != nil {
				return false
			}
			if err := n.Respond("guest", threeSlots()[pick], base); err != nil {
				return false
			}
			if err := n.ConfirmByThirdParty(base); err != nil {
				return false
			}
			once := n.Record()
			if err := n.ConfirmByThirdParty(base.Add(time.Duration(delayMinutes) * time.Minute)); err != nil {
				return false
			}
			return reflect.DeepEqual(once, n.Record()) && n.State("guest", base) == StateConfirmed
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 60*24*30),
	))

	properties.TestingRun(t)
}

type step struct {
	action Action
	by     string
	offset time.Duration
	pick   int
	count  int
}

func genStep() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(ActionRequest, ActionRespond, ActionConfirm, ActionDecline, ActionSuggest, ActionCancel),
		gen.OneConstOf("host", "guest"),
		gen.IntRange(-48, 240),
		gen.IntRange(0, 3),
		gen.IntRange(0, 4),
	).Map(func(vals []interface{}) step {
		return step{
			action: vals[0].(Action),
			by:     vals[1].(string),
			offset: time.Duration(vals[2].(int)) * time.Hour,
			pick:   vals[3].(int),
			count:  vals[4].(int),
		}
	})
}

func (s step) slots() []model.Slot {
	out := make([]model.Slot, 0, s.count)
	for i := 0; i < s.count; i++ {
		out = append(out, model.SlotIn(base.Add(s.offset+time.Duration(i)*6*time.Hour), nyc))
	}
	return out
}

func (s step) apply(n *Negotiation, now time.Time) error {
	switch s.action {
	case ActionRequest:
		return n.Request(s.by, s.slots(), now)
	case ActionSuggest:
		return n.SuggestAlternative(s.by, s.slots(), now)
	case ActionRespond:
		chosen := model.SlotIn(base.Add(s.offset), nyc)
		if rec := n.Record(); rec != nil && s.pick < len(rec.CandidateSlots) {
			chosen = rec.CandidateSlots[s.pick]
		}
		return n.Respond(s.by, chosen, now)
	case ActionConfirm:
		return n.ConfirmByThirdParty(now)
	case ActionDecline:
		return n.Decline(s.by, now)
	default:
		return n.CancelBooked(now)
	}
}

// Property: along any sequence of calls, a failed call leaves the record
// untouched and repeating a successful call with the same arguments is a
// no-op.
func TestTransitionsAtomicAndIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("failed calls do not mutate, successful calls repeat cleanly", prop.ForAll(
		func(steps []step, nowHours int) bool {
			now := base.Add(time.Duration(nowHours) * time.Hour)
			n, err := New("proposal-1")
			if err != nil {
				return false
			}
			for _, s := range steps {
				before := n.Record()
				if err := s.apply(n, now); err != nil {
					if !reflect.DeepEqual(before, n.Record()) {
						t.Logf("%s by %s failed but mutated the record: %v", s.action, s.by, err)
						return false
					}
					continue
				}
				after := n.Record()
				if err := s.apply(n, now); err != nil {
					t.Logf("repeating %s by %s failed: %v", s.action, s.by, err)
					return false
				}
				if !reflect.DeepEqual(after, n.Record()) {
					return false
				}
				if !n.State(s.by, now).IsValid() {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, genStep()),
		gen.IntRange(0, 96),
	))

	properties.TestingRun(t)
}
