package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"leasesched/internal/invite"
	appLog "leasesched/internal/log"
)

// LogSender only logs messages. It is used when no outbox is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	appLog.Info("notification", "kind", msg.Event.Kind, "proposal_id", msg.Event.ProposalID,
		"actor", msg.Event.Actor, "invite_bytes", len(msg.Invite))
	return nil
}

// OutboxSender writes each message into a directory that a mail relay
// drains: an .ics file for invites and a .json file for the event itself.
// File names depend only on the message, so resending overwrites.
type OutboxSender struct {
	Dir string
}

func (s OutboxSender) Send(ctx context.Context, msg Message) error {
	if s.Dir == "" {
		return errors.New("outbox directory is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}

	base := fileBase(msg)
	if len(msg.Invite) > 0 {
		if err := os.WriteFile(filepath.Join(s.Dir, base+".ics"), msg.Invite, 0o600); err != nil {
			return fmt.Errorf("write invite: %w", err)
		}
	}
	data, err := json.MarshalIndent(msg.Event, "", "  ")
	if err != nil {
		return err
	}
	// The event file is written last so a relay that sees it can rely on the invite.
	if err := os.WriteFile(filepath.Join(s.Dir, base+".json"), data, 0o600); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func fileBase(msg Message) string {
	parts := []string{safeName(msg.Event.ProposalID), string(msg.Event.Kind)}
	if r := msg.Event.Request; r != nil && r.ID != "" {
		parts = append(parts, safeName(invite.UID(r)))
	}
	return strings.Join(parts, "_")
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}
