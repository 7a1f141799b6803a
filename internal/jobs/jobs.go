// Package jobs runs the periodic background work (expiry sweep, busy feed
// refresh) on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "leasesched/internal/log"
)

// Func is one run of a job. The context is cancelled when the scheduler stops.
type Func func(ctx context.Context) error

// Scheduler wraps a cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	names   []string
	started bool
}

// New returns a scheduler evaluating specs in loc (UTC if nil).
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers fn under a standard five-field cron spec. An empty spec
// disables the job and is not an error.
func (s *Scheduler) Add(name, spec string, fn Func) error {
	if fn == nil {
		return errors.New("jobs: nil func for " + name)
	}
	if spec == "" {
		appLog.Info("job disabled", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	appLog.Info("job scheduled", "job", name, "spec", spec, "tz", s.cron.Location().String())
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Start begins running the registered jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, fn Func) {
	started := time.Now()
	if err := fn(s.ctx); err != nil {
		appLog.Error("job failed", err, "job", name, "took", time.Since(started).Round(time.Millisecond))
		return
	}
	appLog.Debug("job finished", "job", name, "took", time.Since(started).Round(time.Millisecond))
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
