// Package errors provides sentinel errors for the legacyvault application.
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	// ErrConfiguration is returned when a switch is configured with invalid values,
	// such as a non-positive inactivity period or a missing nominee address.
	ErrConfiguration = errors.New("invalid switch configuration")
)

// Lookup errors
var (
	// ErrNotFound is the generic lookup failure. The more specific errors below match it.
	ErrNotFound = errors.New("not found")

	// ErrSwitchNotFound is returned when no switch exists for an id or owner.
	ErrSwitchNotFound = fmt.Errorf("switch %w", ErrNotFound)

	// ErrOwnerNotFound is returned when an owner reference cannot be resolved.
	ErrOwnerNotFound = fmt.Errorf("owner %w", ErrNotFound)

	// ErrTokenNotFound is returned when an access token matches no triggered switch.
	ErrTokenNotFound = fmt.Errorf("access token %w", ErrNotFound)
)

// Access errors
var (
	// ErrTokenExpired is returned when an access token is past its expiry.
	ErrTokenExpired = errors.New("access token has expired")
)

// Concurrency errors
var (
	// ErrConflict is returned when a conditional update lost a race with another writer.
	ErrConflict = errors.New("switch was modified concurrently")

	// ErrScanInProgress is returned when another scan holds the single-flight lock.
	ErrScanInProgress = errors.New("scan already in progress")
)

// Collaborator errors
var (
	// ErrStore is returned when the persistent store is unavailable or fails.
	ErrStore = errors.New("store unavailable")

	// ErrDelivery is returned when a delivery channel fails to send a message.
	ErrDelivery = errors.New("delivery failed")
)

// KindError attaches one of the sentinel kinds above to an operation and its cause.
// Both errors.Is(err, Kind) and errors.Is(err, cause) hold.
type KindError struct {
	Kind error
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Store wraps a store failure. Errors that already carry a lookup or conflict
// kind are returned unchanged so callers can still distinguish them.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStore) {
		return err
	}
	return &KindError{Kind: ErrStore, Op: op, Err: err}
}

// Delivery wraps a delivery channel failure.
func Delivery(op string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: ErrDelivery, Op: op, Err: err}
}

// Configuration builds a configuration error with a human readable reason.
func Configuration(op, reason string) error {
	return &KindError{Kind: ErrConfiguration, Op: op, Err: errors.New(reason)}
}

// Is reports whether any error in err's chain matches target. It re-exports the
// standard library function so callers importing this package under an alias
// do not also need the stdlib errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
