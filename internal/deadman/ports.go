package deadman

import (
	"context"
	"time"
)

// SwitchStore persists switches. Implementations must make ConditionalUpdate
// atomic: the patch applies only if the stored Version equals
// expectedVersion, otherwise ErrConflict is returned.
type SwitchStore interface {
	CreateSwitch(ctx context.Context, sw *Switch) error
	// ListEligible returns switches that are active and not triggered.
	ListEligible(ctx context.Context) ([]Switch, error)
	GetSwitch(ctx context.Context, id string) (*Switch, error)
	GetSwitchByOwner(ctx context.Context, ownerRef string) (*Switch, error)
	GetSwitchByTokenDigest(ctx context.Context, digest string) (*Switch, error)
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, patch SwitchPatch) (*Switch, error)
}

// NotificationLedger is the append-only notification log.
type NotificationLedger interface {
	InsertNotification(ctx context.Context, rec NotificationRecord) error
	// ExistsSince reports whether a sent record of kind exists for the
	// switch with SentAt at or after since. Failed attempts do not count.
	ExistsSince(ctx context.Context, switchID string, kind NotificationKind, since time.Time) (bool, error)
	ListNotifications(ctx context.Context, switchID string) ([]NotificationRecord, error)
}

// CheckInLog is the append-only check-in audit log.
type CheckInLog interface {
	AppendCheckIn(ctx context.Context, ev CheckInEvent) error
	ListCheckIns(ctx context.Context, switchID string) ([]CheckInEvent, error)
}

// OwnerDirectory resolves an owner reference to an email address.
type OwnerDirectory interface {
	ResolveEmail(ctx context.Context, ownerRef string) (string, error)
}

// OwnerRegistry records owner contact details.
type OwnerRegistry interface {
	UpsertOwner(ctx context.Context, owner Owner) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ScanLock guards against overlapping scans across processes. TryAcquire
// returns ok=false without error when another holder has it.
type ScanLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Observer receives events for metrics. All methods must be cheap and
// safe for concurrent use.
type Observer interface {
	ScanCompleted(report *ScanReport, elapsed time.Duration)
	NotificationRecorded(kind NotificationKind, status NotificationStatus)
	SwitchTriggered()
	CheckedIn()
	AccessValidated(outcome string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ScanCompleted(*ScanReport, time.Duration)                   {}
func (NopObserver) NotificationRecorded(NotificationKind, NotificationStatus) {}
func (NopObserver) SwitchTriggered()                                          {}
func (NopObserver) CheckedIn()                                                {}
func (NopObserver) AccessValidated(string)                                    {}
