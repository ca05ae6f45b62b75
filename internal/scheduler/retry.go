package scheduler

import (
	"errors"
	"math"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// RetryStrategy defines how a scan that could not start is retried.
// Individual notifications are never retried; the next scan handles them.
type RetryStrategy struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// BackoffFactor is the multiplier applied to delay after each attempt
	BackoffFactor float64
}

// DefaultRetryStrategy returns a sensible default retry configuration
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxRetries:    3,
		InitialDelay:  time.Minute,
		MaxDelay:      15 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// NoRetry returns a strategy that never retries
func NoRetry() *RetryStrategy {
	return &RetryStrategy{MaxRetries: 0}
}

// NextDelay calculates the delay before retry number attempt (1-indexed).
func (r *RetryStrategy) NextDelay(attempt int) time.Duration {
	if r == nil || attempt < 1 || attempt > r.MaxRetries {
		return 0
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if time.Duration(delay) > r.MaxDelay {
		return r.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether a retry follows failed attempt number attempt.
func (r *RetryStrategy) ShouldRetry(attempt int) bool {
	return r != nil && attempt <= r.MaxRetries
}

// Retryable reports whether a scan error is worth retrying. Only store
// failures qualify; a scan held elsewhere will be covered by its holder.
func Retryable(err error) bool {
	return err != nil &&
		errors.Is(err, apperrors.ErrStore) &&
		!errors.Is(err, apperrors.ErrScanInProgress)
}

// Attempt is the outcome of one scan attempt.
type Attempt struct {
	// ScheduledTime is when the scan was originally due
	ScheduledTime time.Time
	StartTime     time.Time
	EndTime       time.Time
	Report        *deadman.ScanReport
	Error         error
	// Number is the attempt number (1 = first attempt, 2+ = retries)
	Number    int
	WillRetry bool
}

// Success reports whether the scan ran to completion.
func (a *Attempt) Success() bool {
	return a.Error == nil
}

// Duration returns how long the attempt took
func (a *Attempt) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// IsRetry returns true if this was a retry attempt
func (a *Attempt) IsRetry() bool {
	return a.Number > 1
}
