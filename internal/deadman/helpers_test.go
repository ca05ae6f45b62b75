package deadman_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/store"
	"github.com/lcrostarosa/legacyvault/internal/testutil"
)

var errUnavailable = errors.New("connection refused")

// hookedStore wraps the memory store with test hooks.
type hookedStore struct {
	*store.Memory

	mu              sync.Mutex
	afterList       func()
	listErr         error
	updateConflicts int
	listEntered     chan struct{}
	listRelease     chan struct{}
}

func (h *hookedStore) ListEligible(ctx context.Context) ([]deadman.Switch, error) {
	if h.listEntered != nil {
		close(h.listEntered)
		<-h.listRelease
	}
	if h.listErr != nil {
		return nil, h.listErr
	}
	list, err := h.Memory.ListEligible(ctx)
	if h.afterList != nil {
		h.afterList()
	}
	return list, err
}

func (h *hookedStore) ConditionalUpdate(ctx context.Context, id string, v int64, p deadman.SwitchPatch) (*deadman.Switch, error) {
	h.mu.Lock()
	if h.updateConflicts > 0 {
		h.updateConflicts--
		h.mu.Unlock()
		return nil, apperrors.ErrConflict
	}
	h.mu.Unlock()
	return h.Memory.ConditionalUpdate(ctx, id, v, p)
}

func withHookedStore(hs *hookedStore) testutil.HarnessOption {
	return func(d *deadman.Deps) {
		hs.Memory = d.Switches.(*store.Memory)
		d.Switches = hs
	}
}

// panickyDirectory panics when resolving one owner.
type panickyDirectory struct {
	deadman.OwnerDirectory
	owner string
}

func (p panickyDirectory) ResolveEmail(ctx context.Context, ref string) (string, error) {
	if ref == p.owner {
		panic("directory exploded")
	}
	return p.OwnerDirectory.ResolveEmail(ctx, ref)
}

// failingLedger fails inserts while keeping reads working.
type failingLedger struct {
	deadman.NotificationLedger
}

func (failingLedger) InsertNotification(context.Context, deadman.NotificationRecord) error {
	return errUnavailable
}

// countingObserver records observer calls.
type countingObserver struct {
	deadman.NopObserver
	mu            sync.Mutex
	scans         int
	triggers      int
	checkIns      int
	notifications map[deadman.NotificationStatus]int
	access        map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		notifications: map[deadman.NotificationStatus]int{},
		access:        map[string]int{},
	}
}

func (o *countingObserver) ScanCompleted(*deadman.ScanReport, time.Duration) {
	o.mu.Lock()
	o.scans++
	o.mu.Unlock()
}

func (o *countingObserver) NotificationRecorded(_ deadman.NotificationKind, s deadman.NotificationStatus) {
	o.mu.Lock()
	o.notifications[s]++
	o.mu.Unlock()
}

func (o *countingObserver) SwitchTriggered() {
	o.mu.Lock()
	o.triggers++
	o.mu.Unlock()
}

func (o *countingObserver) CheckedIn() {
	o.mu.Lock()
	o.checkIns++
	o.mu.Unlock()
}

func (o *countingObserver) AccessValidated(outcome string) {
	o.mu.Lock()
	o.access[outcome]++
	o.mu.Unlock()
}

// stubLock is a ScanLock with a fixed answer.
type stubLock struct {
	ok       bool
	err      error
	released int
}

func (l *stubLock) TryAcquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}
