package deadman_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/legacyvault/internal/crypto"
	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/testutil"
)

func TestCheckInResetsClock(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(150))

	res, err := h.Service.CheckIn(ctx, sw.ID, deadman.Origin{IP: "203.0.113.7", UserAgent: "curl/8", Source: "api"})
	require.NoError(t, err)
	assert.True(t, res.LastCheckIn.Equal(h.Clock.Now()))
	assert.True(t, res.NextTriggerAt.Equal(h.Clock.Now().AddDate(0, 0, 180)))

	st, err := h.Service.GetStatus(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.DaysSinceCheckIn)
	assert.Equal(t, 180, st.DaysUntilTrigger)

	hist, err := h.Service.GetHistory(ctx, sw.ID)
	require.NoError(t, err)
	require.Len(t, hist.CheckIns, 1)
	assert.Equal(t, "203.0.113.7", hist.CheckIns[0].Origin.IP)
	assert.Equal(t, "api", hist.CheckIns[0].Origin.Source)
}

func TestCheckInIsIdempotent(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(100))

	first, err := h.Service.CheckIn(ctx, sw.ID, deadman.Origin{})
	require.NoError(t, err)
	second, err := h.Service.CheckIn(ctx, sw.ID, deadman.Origin{})
	require.NoError(t, err)
	assert.Equal(t, first.LastCheckIn, second.LastCheckIn)
	assert.Equal(t, first.NextTriggerAt, second.NextTriggerAt)

	report, err := h.Service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, deadman.ActionNone, report.Results[0].Action)
}

func TestCheckInAfterTriggerRevokesToken(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(185))

	_, err := h.Service.RunScan(ctx)
	require.NoError(t, err)
	token := testutil.AccessTokenFrom(h.Channel.To(sw.Nominee.Email)[0])
	_, err = h.Service.ValidateAccessToken(ctx, token)
	require.NoError(t, err)

	_, err = h.Service.CheckIn(ctx, sw.ID, deadman.Origin{Source: "cli"})
	require.NoError(t, err)

	got := h.Reload(t, sw.ID)
	assert.False(t, got.IsTriggered)
	assert.Empty(t, got.TokenDigest)
	assert.Nil(t, got.TokenExpiresAt)
	assert.Nil(t, got.TriggeredAt)

	_, err = h.Service.ValidateAccessToken(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
	_, err = h.Store.GetSwitchByTokenDigest(ctx, crypto.TokenDigest(token))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckInRetriesLostRaces(t *testing.T) {
	hs := &hookedStore{updateConflicts: 2}
	obs := newCountingObserver()
	h := testutil.NewHarness(t, withHookedStore(hs), func(d *deadman.Deps) { d.Observer = obs })
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(30))

	_, err := h.Service.CheckIn(context.Background(), sw.ID, deadman.Origin{})
	require.NoError(t, err)
	assert.Equal(t, 1, obs.checkIns)
}

func TestCheckInGivesUpAfterRepeatedConflicts(t *testing.T) {
	hs := &hookedStore{updateConflicts: 3}
	h := testutil.NewHarness(t, withHookedStore(hs))
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(30))

	_, err := h.Service.CheckIn(context.Background(), sw.ID, deadman.Origin{})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.True(t, h.Reload(t, sw.ID).LastCheckIn.Equal(h.Clock.DaysAgo(30)))
}

func TestCheckInUnknownSwitch(t *testing.T) {
	h := testutil.NewHarness(t)
	_, err := h.Service.CheckIn(context.Background(), "missing", deadman.Origin{})
	assert.ErrorIs(t, err, apperrors.ErrSwitchNotFound)
}

func TestCheckInOwner(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(90))

	res, err := h.Service.CheckInOwner(ctx, sw.OwnerRef, deadman.Origin{Source: "cli"})
	require.NoError(t, err)
	assert.Equal(t, sw.ID, res.SwitchID)

	_, err = h.Service.CheckInOwner(ctx, "nobody", deadman.Origin{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
