// Package retry runs side-effecting operations (persistence, invite
// delivery) under a caller-controlled exponential backoff. Every outcome is
// returned as a Result and every failed attempt is logged.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "leasesched/internal/log"
)

// Policy controls how often and how patiently Do retries.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	Attempts int `yaml:"attempts" json:"attempts"`
	// BaseDelay is the wait after the first failure; it doubles each time.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultPolicy returns three attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// Delay returns the wait before attempt n+1, after n failed attempts (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Attempt records one call of the operation.
type Attempt struct {
	Number    int       `json:"number"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// Result is the outcome of Do. Err is nil on success.
type Result struct {
	Op       string    `json:"op"`
	Attempts []Attempt `json:"attempts"`
	Err      error     `json:"-"`
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Do calls fn until it succeeds, returns a Permanent error, the policy runs
// out of attempts, or ctx is done. op names the operation in logs.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) Result {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	res := Result{Op: op}

	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("%s: %w", op, err)
			return res
		}

		a := Attempt{Number: n, StartedAt: time.Now()}
		err := fn(ctx)
		if err == nil {
			res.Attempts = append(res.Attempts, a)
			if n > 1 {
				appLog.Info("retry succeeded", "op", op, "attempt", n)
			}
			return res
		}
		a.Error = err.Error()
		res.Attempts = append(res.Attempts, a)

		if errors.Is(err, ErrPermanent) {
			appLog.Error("operation failed permanently", err, "op", op, "attempt", n)
			res.Err = fmt.Errorf("%s: %w", op, err)
			return res
		}
		if n == attempts {
			appLog.Error("operation failed, giving up", err, "op", op, "attempt", n, "max_attempts", attempts)
			res.Err = fmt.Errorf("%s: %w after %d attempts: %w", op, ErrAttemptsExhausted, n, err)
			return res
		}

		wait := p.Delay(n)
		appLog.Warn("operation failed, retrying", "op", op, "attempt", n, "wait", wait, "err", err)
		if !sleep(ctx, wait) {
			res.Err = fmt.Errorf("%s: %w", op, ctx.Err())
			return res
		}
	}
	return res
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
