package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Schedule says when scans run. It is either a fixed interval or a
// five-field cron expression.
type Schedule struct {
	// Expression is the normalized source expression.
	Expression string

	interval time.Duration

	minute *CronField
	hour   *CronField
	dom    *CronField
	month  *CronField
	dow    *CronField
}

// MinInterval is the shortest accepted "every" interval.
const MinInterval = time.Minute

// ParseSchedule parses a schedule expression.
// Supports:
//   - Keywords: "hourly", "daily" (00:00), "weekly" (Sunday 00:00)
//   - Intervals: "every 6h", "every 30m", "every 1h30m"
//   - Cron: "0 0 * * *" with ranges, steps and lists
func ParseSchedule(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))
	switch expr {
	case "":
		return nil, fmt.Errorf("empty schedule")
	case "hourly":
		return &Schedule{Expression: expr, interval: time.Hour}, nil
	case "daily", "@daily", "@midnight":
		return parseCron(expr, "0 0 * * *")
	case "weekly", "@weekly":
		return parseCron(expr, "0 0 * * 0")
	}

	if strings.HasPrefix(expr, "every ") {
		raw := strings.TrimSpace(strings.TrimPrefix(expr, "every "))
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %s", raw)
		}
		if dur < MinInterval {
			return nil, fmt.Errorf("interval must be at least %s", MinInterval)
		}
		return &Schedule{Expression: expr, interval: dur}, nil
	}

	return parseCron(expr, expr)
}

// MustParse is ParseSchedule for expressions known to be valid.
func MustParse(expr string) *Schedule {
	s, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}
	return s
}

func parseCron(name, expr string) (*Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("unrecognized schedule format: %s", name)
	}
	s := &Schedule{Expression: name}

	var err error
	if s.minute, err = ParseCronField(parts[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute: %w", err)
	}
	if s.hour, err = ParseCronField(parts[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour: %w", err)
	}
	if s.dom, err = ParseCronField(parts[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day of month: %w", err)
	}
	if s.month, err = ParseCronField(parts[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month: %w", err)
	}
	if s.dow, err = ParseCronField(parts[4], 0, 6); err != nil {
		return nil, fmt.Errorf("invalid day of week: %w", err)
	}
	return s, nil
}

// IsInterval returns true if this is an interval-based schedule
func (s *Schedule) IsInterval() bool {
	return s.interval > 0
}

// Interval returns the interval duration (0 if not interval-based)
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

func (s *Schedule) String() string {
	return s.Expression
}

func (s *Schedule) matches(t time.Time) bool {
	return s.minute.Contains(t.Minute()) &&
		s.hour.Contains(t.Hour()) &&
		s.dom.Contains(t.Day()) &&
		s.month.Contains(int(t.Month())) &&
		s.dow.Contains(int(t.Weekday()))
}

// NextRun returns the first run time strictly after 'after'.
func (s *Schedule) NextRun(after time.Time) time.Time {
	if s.interval > 0 {
		return after.Add(s.interval)
	}

	t := after.Add(time.Minute).Truncate(time.Minute)

	// Four years covers every dom/month/dow combination including Feb 29.
	limit := after.AddDate(4, 0, 1)
	for t.Before(limit) {
		if !s.month.Contains(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !s.dom.Contains(t.Day()) || !s.dow.Contains(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !s.hour.Contains(t.Hour()) {
			next := s.hour.Next(t.Hour())
			if next == -1 {
				t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day(), next, 0, 0, 0, t.Location())
			}
			continue
		}
		if !s.minute.Contains(t.Minute()) {
			next := s.minute.Next(t.Minute())
			if next == -1 {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), next, 0, 0, t.Location())
			}
			continue
		}
		return t
	}

	// Unsatisfiable, e.g. "0 0 31 2 *".
	return after.Add(24 * time.Hour)
}

// FormatDuration formats a duration nicely
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}
