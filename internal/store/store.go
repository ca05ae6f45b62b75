// Package store provides persistence for switches, the notification ledger,
// the check-in log and the owner registry.
package store

import (
	"fmt"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
)

// Store is everything the deadman service persists.
type Store interface {
	deadman.SwitchStore
	deadman.NotificationLedger
	deadman.CheckInLog
	deadman.OwnerRegistry
	deadman.OwnerDirectory
	Ping() error
	Close() error
}

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open returns a store for driver. The memory driver ignores dsn.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite, DriverMySQL:
		return OpenGorm(driver, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
