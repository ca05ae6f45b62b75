package scheduler

// Callbacks provides hooks for scan lifecycle events.
// All callbacks are optional - nil callbacks are simply not called.
type Callbacks struct {
	OnScanStart   func(a *Attempt)
	OnScanSuccess func(a *Attempt)
	// OnScanFailure sees every failed attempt; a.WillRetry tells whether
	// another follows.
	OnScanFailure func(a *Attempt)
	// OnRetryExhausted receives all failed attempts of one scheduled run.
	OnRetryExhausted func(attempts []*Attempt)
	OnScheduleChange func(old, new *Schedule)
}

func (c *Callbacks) scanStart(a *Attempt) {
	if c != nil && c.OnScanStart != nil {
		c.OnScanStart(a)
	}
}

func (c *Callbacks) scanSuccess(a *Attempt) {
	if c != nil && c.OnScanSuccess != nil {
		c.OnScanSuccess(a)
	}
}

func (c *Callbacks) scanFailure(a *Attempt) {
	if c != nil && c.OnScanFailure != nil {
		c.OnScanFailure(a)
	}
}

func (c *Callbacks) retryExhausted(attempts []*Attempt) {
	if c != nil && c.OnRetryExhausted != nil {
		c.OnRetryExhausted(attempts)
	}
}

func (c *Callbacks) scheduleChange(old, new *Schedule) {
	if c != nil && c.OnScheduleChange != nil {
		c.OnScheduleChange(old, new)
	}
}

// LoggingCallbacks returns callbacks that log events through logf.
func LoggingCallbacks(logf func(format string, args ...interface{})) *Callbacks {
	return &Callbacks{
		OnScanStart: func(a *Attempt) {
			logf("Scan starting (attempt %d)", a.Number)
		},
		OnScanSuccess: func(a *Attempt) {
			logf("Scan finished in %v: %d checked, %d triggered", a.Duration(), a.Report.Checked, a.Report.Triggered)
		},
		OnScanFailure: func(a *Attempt) {
			if a.WillRetry {
				logf("Scan failed (attempt %d), will retry: %v", a.Number, a.Error)
			} else {
				logf("Scan failed (attempt %d): %v", a.Number, a.Error)
			}
		},
		OnRetryExhausted: func(attempts []*Attempt) {
			logf("All %d scan attempts failed", len(attempts))
		},
		OnScheduleChange: func(old, new *Schedule) {
			logf("Scan schedule changed from %q to %q", old.Expression, new.Expression)
		},
	}
}

// ChainCallbacks combines multiple callback handlers
func ChainCallbacks(callbacks ...*Callbacks) *Callbacks {
	return &Callbacks{
		OnScanStart: func(a *Attempt) {
			for _, c := range callbacks {
				c.scanStart(a)
			}
		},
		OnScanSuccess: func(a *Attempt) {
			for _, c := range callbacks {
				c.scanSuccess(a)
			}
		},
		OnScanFailure: func(a *Attempt) {
			for _, c := range callbacks {
				c.scanFailure(a)
			}
		},
		OnRetryExhausted: func(attempts []*Attempt) {
			for _, c := range callbacks {
				c.retryExhausted(attempts)
			}
		},
		OnScheduleChange: func(old, new *Schedule) {
			for _, c := range callbacks {
				c.scheduleChange(old, new)
			}
		},
	}
}
