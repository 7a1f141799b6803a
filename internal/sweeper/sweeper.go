// Package sweeper periodically looks for meeting requests whose candidate
// slots have all passed and announces them once. Expiry is never written
// back; it stays a derived state.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "leasesched/internal/log"
	"leasesched/internal/negotiation"
	"leasesched/internal/notify"
	"leasesched/internal/retry"
	"leasesched/internal/store"
)

// Notifier announces events; *notify.Dispatcher implements it.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event) retry.Result
}

// Report summarizes one sweep.
type Report struct {
	Checked   int
	Expired   []string // proposal IDs announced in this sweep
	Announced int      // expired requests already announced earlier
}

// Sweeper checks stored meetings for expiry.
type Sweeper struct {
	meetings store.MeetingStore
	notifier Notifier
	clock    func() time.Time

	mu        sync.Mutex
	announced map[string]time.Time // meeting ID -> UpdatedAt of the record announced
}

// New returns a sweeper. clock may be nil, in which case time.Now is used.
func New(meetings store.MeetingStore, notifier Notifier, clock func() time.Time) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		meetings:  meetings,
		notifier:  notifier,
		clock:     clock,
		announced: make(map[string]time.Time),
	}
}

// RunOnce checks every stored meeting at now. Each expired request is
// announced once; a request that changes and expires again is announced
// again. Only requests expired in this pass stay remembered. Failures are
// aggregated and the sweep continues.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	reqs, err := s.meetings.ListMeetings(ctx)
	if err != nil {
		return rep, fmt.Errorf("list meetings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	expired := make(map[string]bool)
	for _, req := range reqs {
		rep.Checked++
		n, err := negotiation.Load(req.ProposalID, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("meeting %s: %w", req.ID, err))
			continue
		}
		if !n.CheckExpired(now) {
			continue
		}
		expired[req.ID] = true
		if at, ok := s.announced[req.ID]; ok && at.Equal(req.UpdatedAt) {
			rep.Announced++
			continue
		}

		res := s.notifier.Dispatch(ctx, notify.Event{
			Kind:       notify.KindExpired,
			ProposalID: req.ProposalID,
			Request:    req,
			At:         now,
		})
		if !res.OK() {
			errs = append(errs, res.Err)
			continue
		}
		s.announced[req.ID] = req.UpdatedAt
		rep.Expired = append(rep.Expired, req.ProposalID)
	}
	// Forget records that were removed or are no longer expired.
	for id := range s.announced {
		if !expired[id] {
			delete(s.announced, id)
		}
	}

	appLog.Info("expiry sweep completed", "checked", rep.Checked, "expired", len(rep.Expired), "already_announced", rep.Announced)
	return rep, errors.Join(errs...)
}

// Run sweeps at the sweeper's clock. It fits jobs.Func.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.RunOnce(ctx, s.clock())
	return err
}
