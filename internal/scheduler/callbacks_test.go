package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
)

func TestCallbacks_NilSafe(t *testing.T) {
	var c *Callbacks

	// None of these should panic
	c.scanStart(nil)
	c.scanSuccess(nil)
	c.scanFailure(nil)
	c.retryExhausted(nil)
	c.scheduleChange(nil, nil)

	empty := &Callbacks{}
	empty.scanStart(&Attempt{})
	empty.scanSuccess(&Attempt{})
	empty.scanFailure(&Attempt{})
	empty.retryExhausted([]*Attempt{})
	empty.scheduleChange(&Schedule{}, &Schedule{})
}

func TestChainCallbacks(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) *Callbacks {
		return &Callbacks{
			OnScanStart: func(*Attempt) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			},
		}
	}

	chain := ChainCallbacks(record("first"), nil, record("second"))
	chain.scanStart(&Attempt{})
	chain.scanSuccess(&Attempt{})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestLoggingCallbacks(t *testing.T) {
	var lines []string
	c := LoggingCallbacks(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	c.scanStart(&Attempt{Number: 1})
	c.scanSuccess(&Attempt{Number: 1, Report: &deadman.ScanReport{Checked: 4, Triggered: 1}})
	c.scanFailure(&Attempt{Number: 2, WillRetry: true, Error: fmt.Errorf("store down")})
	c.retryExhausted([]*Attempt{{}, {}})
	c.scheduleChange(MustParse("daily"), MustParse("hourly"))

	assert.Len(t, lines, 5)
	assert.Contains(t, lines[1], "4 checked, 1 triggered")
	assert.Contains(t, lines[2], "will retry")
	assert.Contains(t, lines[3], "All 2 scan attempts failed")
	assert.Contains(t, lines[4], `"daily" to "hourly"`)
}
