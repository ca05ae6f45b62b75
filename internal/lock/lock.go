// Package lock provides the single-flight locks that keep scans from
// overlapping across processes.
package lock

import (
	"fmt"
	"sync"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// Kinds accepted by New.
const (
	KindNone  = "none"
	KindFile  = "file"
	KindRedis = "redis"
)

// DefaultTTL bounds how long a crashed holder can block scans through a
// redis lock.
const DefaultTTL = 30 * time.Minute

// Config selects and configures a lock.
type Config struct {
	Kind          string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// New builds the configured lock. KindNone (or "") returns nil, which the
// service treats as in-process single-flight only. The returned closer
// releases any client resources.
func New(cfg Config) (deadman.ScanLock, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", KindNone:
		return nil, noop, nil
	case KindFile:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("lock: file lock requires a path")
		}
		return NewFileLock(cfg.Path), noop, nil
	case KindRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("lock: redis lock requires an address")
		}
		l := DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("lock: unknown kind %q", cfg.Kind)
	}
}

// releaseFunc adapts an error-returning unlock to the ScanLock release
// signature. Repeated calls release once.
func releaseFunc(kind string, unlock func() error) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := unlock(); err != nil {
				logging.Warn("Failed to release scan lock",
					logging.String("kind", kind),
					logging.Err(err),
				)
			}
		})
	}
}
