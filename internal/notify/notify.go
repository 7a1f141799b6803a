// Package notify delivers notices about negotiation changes after a
// transition has been stored. Delivery is retried under the configured
// policy and the outcome is always returned.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leasesched/internal/invite"
	appLog "leasesched/internal/log"
	"leasesched/internal/model"
	"leasesched/internal/retry"
)

// Kind names the change being announced.
type Kind string

const (
	KindRequested Kind = "requested"
	KindSuggested Kind = "suggested"
	KindBooked    Kind = "booked"
	KindConfirmed Kind = "confirmed"
	KindDeclined  Kind = "declined"
	KindCancelled Kind = "cancelled"
	KindExpired   Kind = "expired"
)

// carriesInvite reports whether the kind comes with a calendar invite.
func (k Kind) carriesInvite() bool {
	return k == KindBooked || k == KindConfirmed || k == KindCancelled
}

// Event is one change to announce. Request is the record the invite is
// built from; for KindCancelled it must be the record as it was before the
// cancellation, while the slot was still booked.
type Event struct {
	Kind       Kind                  `json:"kind"`
	ProposalID string                `json:"proposal_id"`
	Actor      string                `json:"actor,omitempty"`
	Request    *model.MeetingRequest `json:"request,omitempty"`
	At         time.Time             `json:"at"`
}

// Message is what a Sender delivers.
type Message struct {
	Event Event
	// Invite is an iCalendar body, empty for kinds without one.
	Invite []byte
}

// Sender delivers one message. Implementations should be safe to call again
// with the same message after an ambiguous failure.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InviteOptions returns the invite template for an event.
type InviteOptions func(ev Event) invite.Options

// Dispatcher builds messages and hands them to a Sender under a retry policy.
type Dispatcher struct {
	sender  Sender
	policy  retry.Policy
	options InviteOptions
}

// NewDispatcher wires a dispatcher. A nil options func uses empty invite options.
func NewDispatcher(sender Sender, policy retry.Policy, options InviteOptions) *Dispatcher {
	if options == nil {
		options = func(Event) invite.Options { return invite.Options{} }
	}
	return &Dispatcher{sender: sender, policy: policy, options: options}
}

// Dispatch sends ev. A message that cannot be built is a permanent failure
// and is not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) retry.Result {
	op := fmt.Sprintf("notify %s %s", ev.Kind, ev.ProposalID)

	msg, err := d.build(ev)
	if err != nil {
		appLog.Error("notification build failed", err, "kind", ev.Kind, "proposal_id", ev.ProposalID)
		return retry.Result{Op: op, Err: retry.Permanent(err)}
	}

	res := retry.Do(ctx, d.policy, op, func(ctx context.Context) error {
		return d.sender.Send(ctx, msg)
	})
	if res.OK() {
		appLog.Info("notification sent", "kind", ev.Kind, "proposal_id", ev.ProposalID, "attempts", len(res.Attempts))
	}
	return res
}

func (d *Dispatcher) build(ev Event) (Message, error) {
	if ev.ProposalID == "" {
		return Message{}, errors.New("event has no proposal ID")
	}
	msg := Message{Event: ev}
	if !ev.Kind.carriesInvite() {
		return msg, nil
	}

	opts := d.options(ev)
	opts.Cancel = ev.Kind == KindCancelled
	if opts.Stamp.IsZero() {
		opts.Stamp = ev.At
	}
	body, err := invite.Build(ev.Request, opts)
	if err != nil {
		return Message{}, fmt.Errorf("build invite: %w", err)
	}
	msg.Invite = body
	return msg, nil
}
