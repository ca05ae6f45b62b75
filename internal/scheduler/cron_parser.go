package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CronField is one parsed cron field. It can be built from:
// - Single values: "5"
// - Ranges: "1-5"
// - Steps: "*/15" or "1-30/5"
// - Lists: "1,5,10,15"
// - Any: "*"
type CronField struct {
	// Values contains all allowed values (sorted)
	Values []int
	// Any is true if the field matches any value ("*")
	Any bool
}

// Contains checks if a value is allowed by this field
func (f *CronField) Contains(val int) bool {
	if f.Any {
		return true
	}
	i := sort.SearchInts(f.Values, val)
	return i < len(f.Values) && f.Values[i] == val
}

// Next returns the next valid value >= val, or -1 if none exists
func (f *CronField) Next(val int) int {
	if f.Any {
		return val
	}
	i := sort.SearchInts(f.Values, val)
	if i < len(f.Values) {
		return f.Values[i]
	}
	return -1
}

// ParseCronField parses a single cron field bounded by [min, max].
func ParseCronField(field string, min, max int) (*CronField, error) {
	field = strings.TrimSpace(field)
	if field == "*" {
		return &CronField{Any: true}, nil
	}

	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		values, err := parseFieldPart(part, min, max)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			set[v] = true
		}
	}

	cf := &CronField{Values: make([]int, 0, len(set))}
	for v := range set {
		cf.Values = append(cf.Values, v)
	}
	sort.Ints(cf.Values)

	if len(cf.Values) == 0 {
		return nil, fmt.Errorf("no valid values in field: %s", field)
	}
	return cf, nil
}

// parseFieldPart handles a single part (no commas) of a cron field
func parseFieldPart(part string, min, max int) ([]int, error) {
	part = strings.TrimSpace(part)

	var stepStr string
	if idx := strings.Index(part, "/"); idx != -1 {
		stepStr = part[idx+1:]
		part = part[:idx]
	}

	var start, end int
	var err error
	switch idx := strings.Index(part, "-"); {
	case part == "*":
		start, end = min, max
	case idx > 0:
		if start, err = strconv.Atoi(strings.TrimSpace(part[:idx])); err != nil {
			return nil, fmt.Errorf("invalid range start: %s", part[:idx])
		}
		if end, err = strconv.Atoi(strings.TrimSpace(part[idx+1:])); err != nil {
			return nil, fmt.Errorf("invalid range end: %s", part[idx+1:])
		}
	default:
		val, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		start, end = val, val
	}

	if start < min || end > max {
		return nil, fmt.Errorf("value out of range [%d-%d]: %d-%d", min, max, start, end)
	}
	if start > end {
		return nil, fmt.Errorf("invalid range: %d > %d", start, end)
	}

	step := 1
	if stepStr != "" {
		step, err = strconv.Atoi(stepStr)
		if err != nil || step < 1 {
			return nil, fmt.Errorf("invalid step: %s", stepStr)
		}
	}

	var values []int
	for v := start; v <= end; v += step {
		values = append(values, v)
	}
	return values, nil
}
