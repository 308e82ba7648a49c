// Package scheduler runs named callbacks at a wall-clock instant, on a fixed
// interval, or on a cron spec. Scheduling a name again replaces the previous
// job, so repeated calls are idempotent.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns a cron runner for repeating jobs and Go timers for one-shots.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger

	mu       sync.Mutex
	oneShots map[string]*oneShot
	cronIDs  map[string]cron.EntryID
	wg       sync.WaitGroup
	stopped  bool
	stopOnce sync.Once
}

type oneShot struct {
	timer *time.Timer
	when  time.Time
}

// intervalSchedule fires every d. cron.Every rounds to whole seconds; this one does not.
type intervalSchedule struct {
	d time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.d)
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// New starts a Scheduler. Call Stop to release it.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{s: logger.Sugar()}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:      logger,
		oneShots: make(map[string]*oneShot),
		cronIDs:  make(map[string]cron.EntryID),
	}
	s.cron.Start()
	return s
}

// At runs fn once at when. A when in the past fires immediately.
func (s *Scheduler) At(name string, when time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked(name)

	job := &oneShot{when: when}
	job.timer = time.AfterFunc(time.Until(when), func() {
		s.mu.Lock()
		if s.stopped || s.oneShots[name] != job {
			s.mu.Unlock()
			return
		}
		delete(s.oneShots, name)
		s.wg.Add(1)
		s.mu.Unlock()

		defer s.wg.Done()
		s.run(name, fn)
	})
	s.oneShots[name] = job
	s.log.Debug("One-shot job scheduled.", zap.String("name", name), zap.Time("when", when))
}

// After runs fn once after d.
func (s *Scheduler) After(name string, d time.Duration, fn func()) {
	s.At(name, time.Now().Add(d), fn)
}

// Every runs fn repeatedly, every interval, starting one interval from now.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval for job %q must be positive, got %s", name, interval)
	}
	return s.schedule(name, intervalSchedule{d: interval}, fn)
}

// Cron runs fn on a standard five-field cron spec or a descriptor such as "@midnight".
func (s *Scheduler) Cron(name, spec string, fn func()) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %q: %w", spec, name, err)
	}
	return s.schedule(name, sched, fn)
}

func (s *Scheduler) schedule(name string, sched cron.Schedule, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler stopped; cannot schedule %q", name)
	}
	s.cancelLocked(name)
	s.cronIDs[name] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	}))
	s.log.Debug("Repeating job scheduled.", zap.String("name", name))
	return nil
}

func (s *Scheduler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered from panic in scheduled job.", zap.String("name", name), zap.Any("panic_value", r))
		}
	}()
	fn()
}

// Cancel removes the job registered under name. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(name)
}

func (s *Scheduler) cancelLocked(name string) {
	if job, ok := s.oneShots[name]; ok {
		job.timer.Stop()
		delete(s.oneShots, name)
	}
	if id, ok := s.cronIDs[name]; ok {
		s.cron.Remove(id)
		delete(s.cronIDs, name)
	}
}

// Has reports whether a job is registered under name.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, one := s.oneShots[name]
	_, rep := s.cronIDs[name]
	return one || rep
}

// Next returns the next time the named job fires.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.oneShots[name]; ok {
		return job.when, true
	}
	if id, ok := s.cronIDs[name]; ok {
		if e := s.cron.Entry(id); e.Valid() && !e.Next.IsZero() {
			return e.Next, true
		}
		return time.Time{}, true
	}
	return time.Time{}, false
}

// Stop cancels every job and waits for running callbacks to return.
// No callback starts after Stop returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for name := range s.oneShots {
			s.cancelLocked(name)
		}
		for name := range s.cronIDs {
			s.cancelLocked(name)
		}
		s.mu.Unlock()

		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(30 * time.Second):
			s.log.Warn("Timed out waiting for repeating jobs to finish.")
		}
		s.wg.Wait()
		s.log.Debug("Scheduler stopped.")
	})
}

// Wait blocks until ctx is done. Convenience for callers that run the scheduler as a service.
func (s *Scheduler) Wait(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}
