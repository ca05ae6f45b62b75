package scheduler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

func TestDefaultRetryStrategy(t *testing.T) {
	r := DefaultRetryStrategy()
	assert.Equal(t, 3, r.MaxRetries)
	assert.Equal(t, time.Minute, r.InitialDelay)
	assert.Equal(t, 15*time.Minute, r.MaxDelay)
	assert.Equal(t, 2.0, r.BackoffFactor)
}

func TestNoRetry(t *testing.T) {
	r := NoRetry()
	assert.Equal(t, 0, r.MaxRetries)
	assert.False(t, r.ShouldRetry(1), "NoRetry should never allow retries")

	var nilStrategy *RetryStrategy
	assert.False(t, nilStrategy.ShouldRetry(1))
	assert.Zero(t, nilStrategy.NextDelay(1))
}

func TestRetryStrategy_NextDelay(t *testing.T) {
	r := &RetryStrategy{
		MaxRetries:    4,
		InitialDelay:  time.Minute,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 5 * time.Minute}, // capped
		{0, 0},               // invalid attempt
		{5, 0},               // beyond max retries
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, r.NextDelay(tt.attempt), "NextDelay(%d)", tt.attempt)
	}
}

func TestRetryStrategy_ShouldRetry(t *testing.T) {
	r := &RetryStrategy{MaxRetries: 2}
	assert.True(t, r.ShouldRetry(1))
	assert.True(t, r.ShouldRetry(2))
	assert.False(t, r.ShouldRetry(3))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(apperrors.Store("scan.list", errors.New("connection reset"))))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(apperrors.ErrScanInProgress))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", apperrors.ErrScanInProgress)))
	assert.False(t, Retryable(errors.New("boom")))
}

func TestAttempt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Attempt{StartTime: start, EndTime: start.Add(3 * time.Second), Number: 1, Report: &deadman.ScanReport{}}
	assert.Equal(t, 3*time.Second, a.Duration())
	assert.True(t, a.Success())
	assert.False(t, a.IsRetry())

	a.Number = 2
	a.Error = errors.New("boom")
	assert.True(t, a.IsRetry())
	assert.False(t, a.Success())
}
