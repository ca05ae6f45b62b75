// Package scheduler runs inactivity scans on a schedule.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// ScanFunc runs one scan. deadman.Service.RunScan in production.
type ScanFunc func(ctx context.Context) (*deadman.ScanReport, error)

// Scheduler runs a ScanFunc at the times given by a Schedule.
type Scheduler struct {
	scan      ScanFunc
	retry     *RetryStrategy
	callbacks *Callbacks

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu         sync.Mutex
	schedule   *Schedule
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	reload     chan struct{}
	lastRun    time.Time
	lastError  error
	lastReport *deadman.ScanReport
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetry sets the retry strategy for scans that fail to start.
func WithRetry(r *RetryStrategy) Option {
	return func(s *Scheduler) { s.retry = r }
}

// WithCallbacks sets lifecycle hooks.
func WithCallbacks(c *Callbacks) Option {
	return func(s *Scheduler) { s.callbacks = c }
}

// New creates a scheduler. The default retry strategy is NoRetry.
func New(schedule *Schedule, scan ScanFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedule: schedule,
		scan:     scan,
		retry:    NoRetry(),
		now:      time.Now,
		after:    time.After,
		reload:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Start runs the schedule loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for a scan in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// SetSchedule replaces the schedule; a running loop recomputes its next run.
func (s *Scheduler) SetSchedule(schedule *Schedule) {
	s.mu.Lock()
	old := s.schedule
	s.schedule = schedule
	s.mu.Unlock()

	s.callbacks.scheduleChange(old, schedule)
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Status reports the last run and the next planned run.
type Status struct {
	Running    bool
	Schedule   string
	LastRun    time.Time
	LastError  error
	LastReport *deadman.ScanReport
	NextRun    time.Time
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.running,
		Schedule:   s.schedule.String(),
		LastRun:    s.lastRun,
		LastError:  s.lastError,
		LastReport: s.lastReport,
	}
	if s.running {
		from := s.lastRun
		if from.IsZero() {
			from = s.now()
		}
		st.NextRun = s.schedule.NextRun(from)
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.mu.Lock()
		schedule := s.schedule
		s.mu.Unlock()

		next := schedule.NextRun(s.now())
		logging.Info("Next scan scheduled",
			logging.String("schedule", schedule.String()),
			logging.Time("at", next),
		)

		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			logging.Info("Scan scheduler stopped")
			return
		case <-s.reload:
			continue
		case <-s.after(wait):
			_, _ = s.RunOnce(ctx, next)
		}
	}
}

// RunOnce runs a scan due at scheduled, retrying store failures per the
// retry strategy. A scan that has started is not interrupted by ctx.
func (s *Scheduler) RunOnce(ctx context.Context, scheduled time.Time) (*deadman.ScanReport, error) {
	var failed []*Attempt

	for number := 1; ; number++ {
		a := &Attempt{ScheduledTime: scheduled, StartTime: s.now(), Number: number}
		s.callbacks.scanStart(a)

		a.Report, a.Error = s.scan(context.WithoutCancel(ctx))
		a.EndTime = s.now()

		s.mu.Lock()
		s.lastRun = a.EndTime
		s.lastError = a.Error
		if a.Report != nil {
			s.lastReport = a.Report
		}
		s.mu.Unlock()

		if a.Success() {
			s.callbacks.scanSuccess(a)
			return a.Report, nil
		}

		a.WillRetry = Retryable(a.Error) && s.retry.ShouldRetry(number)
		failed = append(failed, a)
		s.callbacks.scanFailure(a)
		logging.Warn("Scheduled scan failed",
			logging.Int("attempt", number),
			logging.Bool("will_retry", a.WillRetry),
			logging.Err(a.Error),
		)

		if !a.WillRetry {
			if number > 1 {
				s.callbacks.retryExhausted(failed)
			}
			return nil, a.Error
		}

		select {
		case <-ctx.Done():
			return nil, a.Error
		case <-s.after(s.retry.NextDelay(number)):
		}
	}
}
