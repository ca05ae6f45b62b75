package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// Memory is an in-process store used for development and tests. Conditional
// updates are serialized by a single mutex.
type Memory struct {
	mu            sync.RWMutex
	switches      map[string]*deadman.Switch
	byOwner       map[string]string
	byDigest      map[string]string
	notifications []deadman.NotificationRecord
	checkIns      []deadman.CheckInEvent
	owners        map[string]deadman.Owner
	now           func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		switches: make(map[string]*deadman.Switch),
		byOwner:  make(map[string]string),
		byDigest: make(map[string]string),
		owners:   make(map[string]deadman.Owner),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping() error  { return nil }
func (m *Memory) Close() error { return nil }

func (m *Memory) CreateSwitch(_ context.Context, sw *deadman.Switch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.switches[sw.ID]; ok {
		return apperrors.ErrConflict
	}
	if _, ok := m.byOwner[sw.OwnerRef]; ok {
		return apperrors.ErrConflict
	}
	if sw.TokenDigest != "" {
		if _, ok := m.byDigest[sw.TokenDigest]; ok {
			return apperrors.ErrConflict
		}
		m.byDigest[sw.TokenDigest] = sw.ID
	}
	c := sw.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	m.switches[c.ID] = c
	m.byOwner[c.OwnerRef] = c.ID
	return nil
}

func (m *Memory) ListEligible(_ context.Context) ([]deadman.Switch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]deadman.Switch, 0, len(m.switches))
	for _, sw := range m.switches {
		if sw.Eligible() {
			out = append(out, *sw.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetSwitch(_ context.Context, id string) (*deadman.Switch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sw, ok := m.switches[id]
	if !ok {
		return nil, apperrors.ErrSwitchNotFound
	}
	return sw.Clone(), nil
}

func (m *Memory) GetSwitchByOwner(ctx context.Context, ownerRef string) (*deadman.Switch, error) {
	m.mu.RLock()
	id, ok := m.byOwner[ownerRef]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSwitchNotFound
	}
	return m.GetSwitch(ctx, id)
}

func (m *Memory) GetSwitchByTokenDigest(ctx context.Context, digest string) (*deadman.Switch, error) {
	if digest == "" {
		return nil, apperrors.ErrSwitchNotFound
	}
	m.mu.RLock()
	id, ok := m.byDigest[digest]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSwitchNotFound
	}
	return m.GetSwitch(ctx, id)
}

func (m *Memory) ConditionalUpdate(_ context.Context, id string, expectedVersion int64, patch deadman.SwitchPatch) (*deadman.Switch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.switches[id]
	if !ok {
		return nil, apperrors.ErrSwitchNotFound
	}
	if cur.Version != expectedVersion {
		return nil, apperrors.ErrConflict
	}

	next := cur.Clone()
	patch.Apply(next)
	if next.TokenDigest != "" && next.TokenDigest != cur.TokenDigest {
		if other, taken := m.byDigest[next.TokenDigest]; taken && other != id {
			return nil, apperrors.ErrConflict
		}
	}

	if cur.TokenDigest != "" && cur.TokenDigest != next.TokenDigest {
		delete(m.byDigest, cur.TokenDigest)
	}
	if next.TokenDigest != "" {
		m.byDigest[next.TokenDigest] = id
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = m.now()
	m.switches[id] = next
	return next.Clone(), nil
}

func (m *Memory) InsertNotification(_ context.Context, rec deadman.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, rec)
	return nil
}

func (m *Memory) ExistsSince(_ context.Context, switchID string, kind deadman.NotificationKind, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.notifications {
		if rec.SwitchID == switchID && rec.Kind == kind && rec.Status == deadman.StatusSent && !rec.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListNotifications(_ context.Context, switchID string) ([]deadman.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []deadman.NotificationRecord{}
	for _, rec := range m.notifications {
		if rec.SwitchID == switchID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) AppendCheckIn(_ context.Context, ev deadman.CheckInEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkIns = append(m.checkIns, ev)
	return nil
}

func (m *Memory) ListCheckIns(_ context.Context, switchID string) ([]deadman.CheckInEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []deadman.CheckInEvent{}
	for _, ev := range m.checkIns {
		if ev.SwitchID == switchID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) UpsertOwner(_ context.Context, owner deadman.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[owner.Ref] = owner
	return nil
}

func (m *Memory) ResolveEmail(_ context.Context, ownerRef string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[ownerRef]
	if !ok {
		return "", apperrors.ErrOwnerNotFound
	}
	return owner.Email, nil
}
