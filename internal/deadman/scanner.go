package deadman

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// DefaultScanConcurrency is the worker count when none is configured.
const DefaultScanConcurrency = 4

// Action is what a scan did to one switch.
type Action string

const (
	ActionNone         Action = "none"
	ActionSkipped      Action = "skipped"
	ActionWarned       Action = "warned"
	ActionFinalWarned  Action = "final_warned"
	ActionDeduplicated Action = "deduplicated"
	ActionTriggered    Action = "triggered"
	ActionNotifyFailed Action = "notify_failed"
	ActionFailed       Action = "failed"
)

// SwitchResult is the per-switch outcome of a scan.
type SwitchResult struct {
	SwitchID       string         `json:"switch_id"`
	Classification Classification `json:"-"`
	DaysSince      int            `json:"days_since"`
	Action         Action         `json:"action"`
	Err            error          `json:"-"`
}

// SwitchError pairs a failed switch with its error.
type SwitchError struct {
	SwitchID string
	Err      error
}

func (e SwitchError) Error() string {
	return fmt.Sprintf("switch %s: %v", e.SwitchID, e.Err)
}

func (e SwitchError) Unwrap() error { return e.Err }

// ScanReport aggregates one scan.
type ScanReport struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Checked      int
	Warned       int
	FinalWarned  int
	Triggered    int
	Skipped      int
	Deduplicated int
	Results      []SwitchResult
	Errors       []SwitchError
}

// Scanner drives eligible switches through evaluation, reminders and trigger.
type Scanner struct {
	store       SwitchStore
	directory   OwnerDirectory
	dispatcher  *Dispatcher
	trigger     *TriggerExecutor
	clock       Clock
	observer    Observer
	concurrency int
}

func NewScanner(store SwitchStore, directory OwnerDirectory, dispatcher *Dispatcher, trigger *TriggerExecutor, clock Clock, observer Observer, concurrency int) *Scanner {
	if observer == nil {
		observer = NopObserver{}
	}
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}
	return &Scanner{
		store:       store,
		directory:   directory,
		dispatcher:  dispatcher,
		trigger:     trigger,
		clock:       clock,
		observer:    observer,
		concurrency: concurrency,
	}
}

// Run scans every eligible switch. Failing to list switches fails the whole
// scan; anything that goes wrong for one switch is recorded in its result
// and does not affect the others. Callers must prevent overlapping runs.
func (s *Scanner) Run(ctx context.Context) (*ScanReport, error) {
	started := time.Now()
	report := &ScanReport{StartedAt: s.clock.Now()}

	switches, err := s.store.ListEligible(ctx)
	if err != nil {
		return nil, apperrors.Store("scan.list", err)
	}
	report.Checked = len(switches)
	report.Results = make([]SwitchResult, len(switches))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range switches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = s.processSafely(ctx, &switches[i])
		}(i)
	}
	wg.Wait()

	for _, r := range report.Results {
		switch r.Action {
		case ActionSkipped:
			report.Skipped++
		case ActionWarned:
			report.Warned++
		case ActionFinalWarned:
			report.FinalWarned++
		case ActionDeduplicated:
			report.Deduplicated++
		case ActionTriggered:
			report.Triggered++
		}
		if r.Err != nil {
			report.Errors = append(report.Errors, SwitchError{SwitchID: r.SwitchID, Err: r.Err})
		}
	}
	report.FinishedAt = s.clock.Now()

	s.observer.ScanCompleted(report, time.Since(started))
	logging.Info("Scan completed",
		logging.Int("checked", report.Checked),
		logging.Int("warned", report.Warned),
		logging.Int("final_warned", report.FinalWarned),
		logging.Int("triggered", report.Triggered),
		logging.Int("skipped", report.Skipped),
		logging.Int("deduplicated", report.Deduplicated),
		logging.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *Scanner) processSafely(ctx context.Context, sw *Switch) (res SwitchResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic while processing switch",
				logging.String("switch_id", sw.ID),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			res = SwitchResult{SwitchID: sw.ID, Action: ActionFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.process(ctx, sw)
}

func (s *Scanner) process(ctx context.Context, sw *Switch) SwitchResult {
	res := SwitchResult{SwitchID: sw.ID, Action: ActionNone}

	if !sw.Eligible() || sw.LastCheckIn == nil {
		res.Action = ActionSkipped
		return res
	}

	ev, err := Evaluate(s.clock.Now(), *sw.LastCheckIn, sw.InactivityPeriodDays)
	if err != nil {
		res.Action, res.Err = ActionFailed, err
		return res
	}
	res.Classification = ev.Classification
	res.DaysSince = ev.DaysSince

	logging.Debug("Switch evaluated",
		logging.String("switch_id", sw.ID),
		logging.String("classification", ev.Classification.String()),
		logging.Int("days_since", ev.DaysSince),
	)

	if ev.Classification == Healthy {
		return res
	}

	ownerEmail, err := s.directory.ResolveEmail(ctx, sw.OwnerRef)
	if err != nil {
		res.Action, res.Err = ActionFailed, apperrors.Store("scan.owner", err)
		return res
	}

	switch ev.Classification {
	case Expired:
		result, err := s.trigger.Execute(ctx, sw, ownerEmail)
		if result != nil {
			res.Action = ActionTriggered
		} else {
			res.Action = ActionFailed
		}
		res.Err = err

	case FinalWarning, Warning:
		outcome, err := s.dispatcher.Dispatch(ctx, sw, ev, ownerEmail)
		switch outcome {
		case DispatchDeduplicated:
			res.Action = ActionDeduplicated
		case DispatchSent:
			res.Action = ActionWarned
			if ev.Classification == FinalWarning {
				res.Action = ActionFinalWarned
			}
		default:
			res.Action = ActionNotifyFailed
		}
		res.Err = err
	}
	return res
}
