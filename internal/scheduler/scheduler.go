// Package scheduler provides a minimal run-at-time callback facility.
//
// A scheduled callback fires at most once. Cancellation wins any race with
// the timer as long as it is observed before the callback starts running;
// once a callback has started, cancelling has no retroactive effect.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sailclub/sailcredit/internal/dependencies/clock"
)

// Callback is invoked with the id the job was scheduled under
type Callback func(id string)

type job struct {
	gen   uint64
	runAt time.Time
	fn    Callback
	timer clock.Timer
}

// Scheduler tracks pending jobs keyed by id
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *slog.Logger
	jobs    map[string]*job
	nextGen uint64
	stopped bool
}

// New creates a Scheduler
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clk,
		logger: logger.With(slog.String("component", "scheduler")),
		jobs:   make(map[string]*job),
	}
}

// Schedule registers fn to run at runAt under the given id, replacing any
// pending job with the same id. Times in the past fire immediately.
func (s *Scheduler) Schedule(id string, runAt time.Time, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if existing, ok := s.jobs[id]; ok {
		existing.timer.Stop()
	}

	s.nextGen++
	gen := s.nextGen
	j := &job{gen: gen, runAt: runAt, fn: fn}
	j.timer = s.clock.AfterFunc(s.delay(runAt), func() {
		s.fire(id, gen)
	})
	s.jobs[id] = j

	s.logger.Debug("job scheduled",
		slog.String("job_id", id),
		slog.Time("run_at", runAt),
	)
}

// Reschedule moves a pending job to a new run time. Returns false if no job
// is pending under the id (never fired, already fired, or cancelled).
func (s *Scheduler) Reschedule(id string, runAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	j, ok := s.jobs[id]
	if !ok {
		return false
	}

	j.timer.Stop()
	s.nextGen++
	j.gen = s.nextGen
	j.runAt = runAt
	gen := j.gen
	j.timer = s.clock.AfterFunc(s.delay(runAt), func() {
		s.fire(id, gen)
	})

	s.logger.Debug("job rescheduled",
		slog.String("job_id", id),
		slog.Time("run_at", runAt),
	)
	return true
}

// RunAt returns the pending job's run time, if one exists for the id
func (s *Scheduler) RunAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return time.Time{}, false
	}
	return j.runAt, true
}

// Cancel removes a pending job. Cancelling an unknown or already-fired id is
// a no-op.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.timer.Stop()
	delete(s.jobs, id)
	s.logger.Debug("job cancelled", slog.String("job_id", id))
}

// Stop cancels all pending jobs and rejects new ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, id)
	}
}

// fire runs on the timer goroutine. A job only runs if it is still the
// current generation for its id; a cancel or reschedule observed first wins.
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || j.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, id)
	fn := j.fn
	s.mu.Unlock()

	fn(id)
}

func (s *Scheduler) delay(runAt time.Time) time.Duration {
	d := runAt.Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}
