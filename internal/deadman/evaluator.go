package deadman

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

const day = 24 * time.Hour

// Classification is the severity of an owner's inactivity.
type Classification int

const (
	Healthy Classification = iota
	Warning
	FinalWarning
	Expired
)

func (c Classification) String() string {
	switch c {
	case Healthy:
		return "HEALTHY"
	case Warning:
		return "WARNING"
	case FinalWarning:
		return "FINAL_WARNING"
	case Expired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// NotificationKind maps a warning classification to its ledger kind.
func (c Classification) NotificationKind() (NotificationKind, bool) {
	switch c {
	case Warning:
		return KindWarning, true
	case FinalWarning:
		return KindFinalWarning, true
	default:
		return "", false
	}
}

// Evaluation is the outcome of classifying one switch at one instant.
type Evaluation struct {
	Classification Classification
	DaysSince      int
	PercentElapsed float64
	DaysRemaining  int
}

// Evaluate classifies inactivity. daysSince is floored to whole days and a
// check-in in the future counts as zero days. Thresholds are inclusive and
// compared in int64 arithmetic so 135/180 is exactly 75% and no period
// can wrap a threshold negative.
func Evaluate(now, lastCheckIn time.Time, periodDays int) (Evaluation, error) {
	if periodDays <= 0 {
		return Evaluation{}, apperrors.Configuration("evaluate",
			fmt.Sprintf("inactivity period must be positive, got %d", periodDays))
	}

	daysSince := DaysBetween(lastCheckIn, now)
	ev := Evaluation{
		DaysSince:      daysSince,
		PercentElapsed: 100 * float64(daysSince) / float64(periodDays),
		DaysRemaining:  max(0, periodDays-daysSince),
	}

	if daysSince >= periodDays {
		ev.Classification = Expired
		return ev, nil
	}

	// daysSince is bounded by the range of time.Duration, so a period too
	// large for the products below is nowhere near any threshold.
	if int64(periodDays) > math.MaxInt64/TriggerPercent {
		ev.Classification = Healthy
		return ev, nil
	}
	since, period := int64(daysSince)*100, int64(periodDays)
	switch {
	case since >= FinalWarningPercent*period:
		ev.Classification = FinalWarning
	case since >= WarningPercent*period:
		ev.Classification = Warning
	default:
		ev.Classification = Healthy
	}
	return ev, nil
}

// periodDuration converts a period in days, clamped to
// MaxInactivityPeriodDays so the result cannot overflow time.Duration.
func periodDuration(periodDays int) time.Duration {
	return time.Duration(min(periodDays, MaxInactivityPeriodDays)) * day
}

// DaysBetween returns the whole days from then to now, never negative.
func DaysBetween(then, now time.Time) int {
	d := now.Sub(then)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}
