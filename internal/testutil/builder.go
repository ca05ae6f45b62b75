package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	"github.com/lcrostarosa/legacyvault/internal/store"
)

var switchSeq atomic.Int64

// SwitchBuilder constructs switches relative to a clock.
type SwitchBuilder struct {
	clock *Clock
	sw    deadman.Switch
}

// NewSwitch starts an active, healthy switch checked in at the clock's now.
func NewSwitch(clock *Clock) *SwitchBuilder {
	n := switchSeq.Add(1)
	now := clock.Now()
	return &SwitchBuilder{
		clock: clock,
		sw: deadman.Switch{
			ID:       fmt.Sprintf("switch-%d", n),
			OwnerRef: fmt.Sprintf("owner-%d", n),
			Nominee: deadman.Nominee{
				Email:    fmt.Sprintf("nominee-%d@example.com", n),
				Name:     "Jane Doe",
				Relation: "sibling",
			},
			PersonalMessage:      "Everything is in the blue folder.",
			InactivityPeriodDays: deadman.DefaultInactivityPeriodDays,
			LastCheckIn:          &now,
			IsActive:             true,
			Version:              1,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}
}

func (b *SwitchBuilder) WithID(id string) *SwitchBuilder {
	b.sw.ID = id
	return b
}

func (b *SwitchBuilder) WithOwner(ref string) *SwitchBuilder {
	b.sw.OwnerRef = ref
	return b
}

func (b *SwitchBuilder) WithNominee(email, name string) *SwitchBuilder {
	b.sw.Nominee.Email = email
	b.sw.Nominee.Name = name
	return b
}

func (b *SwitchBuilder) WithPeriod(days int) *SwitchBuilder {
	b.sw.InactivityPeriodDays = days
	return b
}

// CheckedInDaysAgo sets lastCheckIn n days before the clock's now.
func (b *SwitchBuilder) CheckedInDaysAgo(n int) *SwitchBuilder {
	t := b.clock.DaysAgo(n)
	b.sw.LastCheckIn = &t
	return b
}

// NeverCheckedIn clears lastCheckIn.
func (b *SwitchBuilder) NeverCheckedIn() *SwitchBuilder {
	b.sw.LastCheckIn = nil
	return b
}

func (b *SwitchBuilder) Inactive() *SwitchBuilder {
	b.sw.IsActive = false
	return b
}

// Triggered marks the switch triggered with the given token digest.
func (b *SwitchBuilder) Triggered(digest string, expiresAt time.Time) *SwitchBuilder {
	now := b.clock.Now()
	b.sw.IsTriggered = true
	b.sw.TokenDigest = digest
	b.sw.TokenExpiresAt = &expiresAt
	b.sw.TriggeredAt = &now
	return b
}

// Build returns the switch without persisting it.
func (b *SwitchBuilder) Build() *deadman.Switch {
	return b.sw.Clone()
}

// Save persists the switch and returns it.
func (b *SwitchBuilder) Save(t *testing.T, s deadman.SwitchStore) *deadman.Switch {
	t.Helper()
	sw := b.Build()
	require.NoError(t, s.CreateSwitch(context.Background(), sw))
	return sw
}

// Harness is a fully wired service over an in-memory store.
type Harness struct {
	Clock   *Clock
	Store   *store.Memory
	Channel *RecordingChannel
	Service *deadman.Service
	Links   deadman.Links
}

// HarnessOption adjusts the service deps before construction.
type HarnessOption func(*deadman.Deps)

// NewHarness builds a Harness at Epoch.
func NewHarness(t *testing.T, opts ...HarnessOption) *Harness {
	t.Helper()

	h := &Harness{
		Clock:   NewClock(Epoch),
		Store:   store.NewMemory(),
		Channel: NewRecordingChannel(),
		Links:   deadman.Links{BaseURL: "https://vault.example.com"},
	}
	deps := deadman.Deps{
		Switches:  h.Store,
		Ledger:    h.Store,
		CheckIns:  h.Store,
		Owners:    h.Store,
		Directory: h.Store,
		Channel:   h.Channel,
		Clock:     h.Clock,
		Links:     h.Links,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := deadman.NewService(deps)
	require.NoError(t, err)
	h.Service = svc
	return h
}

// OwnerEmail is the address AddSwitch registers for an owner.
func OwnerEmail(ownerRef string) string {
	return ownerRef + "@example.com"
}

// AddSwitch persists the switch from b and registers its owner.
func (h *Harness) AddSwitch(t *testing.T, b *SwitchBuilder) *deadman.Switch {
	t.Helper()
	sw := b.Save(t, h.Store)
	require.NoError(t, h.Store.UpsertOwner(context.Background(), deadman.Owner{
		Ref:   sw.OwnerRef,
		Email: OwnerEmail(sw.OwnerRef),
	}))
	return sw
}

// Notifications returns the ledger entries for a switch.
func (h *Harness) Notifications(t *testing.T, switchID string) []deadman.NotificationRecord {
	t.Helper()
	recs, err := h.Store.ListNotifications(context.Background(), switchID)
	require.NoError(t, err)
	return recs
}

// CountNotifications counts ledger entries of kind and status.
func (h *Harness) CountNotifications(t *testing.T, switchID string, kind deadman.NotificationKind, status deadman.NotificationStatus) int {
	t.Helper()
	n := 0
	for _, r := range h.Notifications(t, switchID) {
		if r.Kind == kind && r.Status == status {
			n++
		}
	}
	return n
}

// Reload reads the switch back from the store.
func (h *Harness) Reload(t *testing.T, id string) *deadman.Switch {
	t.Helper()
	sw, err := h.Store.GetSwitch(context.Background(), id)
	require.NoError(t, err)
	return sw
}
