package deadman

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// checkInAttempts bounds re-reads after losing an update race. The owner's
// check-in must win over a concurrent trigger decision.
const checkInAttempts = 3

// CheckInHandler resets a switch's inactivity clock.
type CheckInHandler struct {
	store    SwitchStore
	log      CheckInLog
	clock    Clock
	observer Observer
}

func NewCheckInHandler(store SwitchStore, log CheckInLog, clock Clock, observer Observer) *CheckInHandler {
	if observer == nil {
		observer = NopObserver{}
	}
	return &CheckInHandler{store: store, log: log, clock: clock, observer: observer}
}

// CheckIn sets lastCheckIn to now, clears the triggered flag and any
// previously issued token, and appends an audit event. Repeating it is
// harmless.
func (h *CheckInHandler) CheckIn(ctx context.Context, switchID string, origin Origin) (*Switch, error) {
	var (
		updated *Switch
		err     error
	)
	for attempt := 1; attempt <= checkInAttempts; attempt++ {
		var sw *Switch
		sw, err = h.store.GetSwitch(ctx, switchID)
		if err != nil {
			return nil, apperrors.Store("checkin.get", err)
		}

		now := h.clock.Now()
		updated, err = h.store.ConditionalUpdate(ctx, sw.ID, sw.Version, SwitchPatch{
			LastCheckIn: &now,
			IsTriggered: ptr(false),
			ClearToken:  true,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Store("checkin.update", err)
		}
		logging.Debug("Check-in lost update race, retrying",
			logging.String("switch_id", switchID),
			logging.Int("attempt", attempt),
		)
	}
	if err != nil {
		return nil, err
	}

	ev := CheckInEvent{
		ID:       uuid.NewString(),
		SwitchID: switchID,
		At:       *updated.LastCheckIn,
		Origin:   origin,
	}
	if err := h.log.AppendCheckIn(ctx, ev); err != nil {
		return nil, apperrors.Store("checkin.audit", err)
	}

	h.observer.CheckedIn()
	logging.Info("Check-in recorded",
		logging.String("switch_id", switchID),
		logging.String("source", origin.Source),
	)
	return updated, nil
}
