package deadman_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/store"
	"github.com/lcrostarosa/legacyvault/internal/testutil"
)

func configure(t *testing.T, h *testutil.Harness, owner string) *deadman.Switch {
	t.Helper()
	sw, err := h.Service.ConfigureSwitch(context.Background(), deadman.ConfigureParams{
		OwnerRef: owner,
		Nominee:  deadman.Nominee{Email: "sam@example.com", Name: "Sam", Relation: "partner"},
	})
	require.NoError(t, err)
	return sw
}

func TestConfigureSwitchDefaults(t *testing.T) {
	h := testutil.NewHarness(t)
	sw := configure(t, h, "alice")

	assert.NotEmpty(t, sw.ID)
	assert.Equal(t, "alice", sw.OwnerRef)
	assert.Equal(t, deadman.DefaultInactivityPeriodDays, sw.InactivityPeriodDays)
	assert.False(t, sw.IsActive, "new switches start inactive")
	assert.False(t, sw.IsTriggered)
	require.NotNil(t, sw.LastCheckIn)
	assert.True(t, sw.LastCheckIn.Equal(h.Clock.Now()))
}

func TestConfigureSwitchUpdatesInPlace(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	first := configure(t, h, "alice")

	h.Clock.AdvanceDays(10)
	updated, err := h.Service.ConfigureSwitch(ctx, deadman.ConfigureParams{
		OwnerRef:             "alice",
		Nominee:              deadman.Nominee{Email: "kim@example.com", Name: "Kim"},
		PersonalMessage:      "See the safe.",
		InactivityPeriodDays: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "kim@example.com", updated.Nominee.Email)
	assert.Equal(t, "See the safe.", updated.PersonalMessage)
	assert.Equal(t, 30, updated.InactivityPeriodDays)
	assert.True(t, updated.LastCheckIn.Equal(*first.LastCheckIn), "reconfiguring does not reset the clock")
	assert.Greater(t, updated.Version, first.Version)
}

func TestConfigureSwitchValidation(t *testing.T) {
	h := testutil.NewHarness(t)
	tests := []struct {
		name   string
		params deadman.ConfigureParams
	}{
		{"missing owner", deadman.ConfigureParams{Nominee: deadman.Nominee{Email: "a@example.com"}}},
		{"negative period", deadman.ConfigureParams{OwnerRef: "o", InactivityPeriodDays: -5, Nominee: deadman.Nominee{Email: "a@example.com"}}},
		{"period above maximum", deadman.ConfigureParams{OwnerRef: "o", InactivityPeriodDays: deadman.MaxInactivityPeriodDays + 1, Nominee: deadman.Nominee{Email: "a@example.com"}}},
		{"overflowing period", deadman.ConfigureParams{OwnerRef: "o", InactivityPeriodDays: 100000000000000000, Nominee: deadman.Nominee{Email: "a@example.com"}}},
		{"missing nominee email", deadman.ConfigureParams{OwnerRef: "o"}},
		{"malformed nominee email", deadman.ConfigureParams{OwnerRef: "o", Nominee: deadman.Nominee{Email: "not-an-email"}}},
		{"display name form", deadman.ConfigureParams{OwnerRef: "o", Nominee: deadman.Nominee{Email: "Sam <sam@example.com>"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Service.ConfigureSwitch(context.Background(), tt.params)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestConfigureSwitchAtMaximumPeriod(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw, err := h.Service.ConfigureSwitch(ctx, deadman.ConfigureParams{
		OwnerRef:             "alice",
		Nominee:              deadman.Nominee{Email: "sam@example.com"},
		InactivityPeriodDays: deadman.MaxInactivityPeriodDays,
	})
	require.NoError(t, err)
	_, err = h.Service.SetActive(ctx, sw.ID, true)
	require.NoError(t, err)

	report, err := h.Service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Triggered)
	assert.False(t, h.Reload(t, sw.ID).IsTriggered)

	res, err := h.Service.CheckIn(ctx, sw.ID, deadman.Origin{Source: "api"})
	require.NoError(t, err)
	assert.True(t, res.NextTriggerAt.Equal(h.Clock.Now().AddDate(0, 0, deadman.MaxInactivityPeriodDays)))
}

func TestSetActive(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := configure(t, h, "alice")

	h.Clock.AdvanceDays(400)
	active, err := h.Service.SetActive(ctx, sw.ID, true)
	require.NoError(t, err)
	assert.True(t, active.IsActive)
	assert.True(t, active.LastCheckIn.Equal(h.Clock.Now()), "activation starts the clock now")

	report, err := h.Service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Triggered)

	inactive, err := h.Service.SetActive(ctx, sw.ID, false)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)
	assert.Nil(t, inactive.LastCheckIn)

	report, err = h.Service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)

	_, err = h.Service.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, apperrors.ErrSwitchNotFound)
}

func TestGetStatus(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(40))

	st, err := h.Service.GetStatus(ctx, sw.ID)
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.True(t, st.IsActive)
	assert.False(t, st.IsTriggered)
	assert.Equal(t, 40, st.DaysSinceCheckIn)
	assert.Equal(t, 140, st.DaysUntilTrigger)
	assert.Equal(t, sw.Nominee.Email, st.NomineeEmail)
	assert.Nil(t, st.TriggeredAt)

	h.Clock.AdvanceDays(145)
	_, err = h.Service.RunScan(ctx)
	require.NoError(t, err)

	st, err = h.Service.GetStatus(ctx, sw.ID)
	require.NoError(t, err)
	assert.True(t, st.IsTriggered)
	assert.Equal(t, 0, st.DaysUntilTrigger)
	require.NotNil(t, st.TriggeredAt)

	_, err = h.Service.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetStatusByOwner(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	st, err := h.Service.GetStatusByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, st.Configured)

	sw := configure(t, h, "alice")
	st, err = h.Service.GetStatusByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.Equal(t, sw.ID, st.SwitchID)
	assert.False(t, st.IsActive)
}

func TestSendTestNotificationBypassesDedup(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock))

	for i := 0; i < 2; i++ {
		rec, err := h.Service.SendTestNotification(ctx, sw.ID)
		require.NoError(t, err)
		assert.Equal(t, deadman.KindTest, rec.Kind)
		assert.Equal(t, deadman.StatusSent, rec.Status)
		assert.Equal(t, sw.Nominee.Email, rec.Recipient)
	}
	assert.Equal(t, 2, h.CountNotifications(t, sw.ID, deadman.KindTest, deadman.StatusSent))

	msgs := h.Channel.To(sw.Nominee.Email)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Subject, "Test Email Successful")
	assert.Contains(t, msgs[0].HTML, testutil.OwnerEmail(sw.OwnerRef))

	st, err := h.Service.GetStatus(ctx, sw.ID)
	require.NoError(t, err)
	assert.False(t, st.IsTriggered, "a test message changes no switch state")
}

func TestSendTestNotificationFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock))
	h.Channel.FailAll(true)

	rec, err := h.Service.SendTestNotification(context.Background(), sw.ID)
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
	require.NotNil(t, rec)
	assert.Equal(t, deadman.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
	assert.Equal(t, 1, h.CountNotifications(t, sw.ID, deadman.KindTest, deadman.StatusFailed))
}

func TestSendTestNotificationWithoutOwner(t *testing.T) {
	h := testutil.NewHarness(t)
	sw := testutil.NewSwitch(h.Clock).Save(t, h.Store)

	_, err := h.Service.SendTestNotification(context.Background(), sw.ID)
	require.NoError(t, err)
	msgs := h.Channel.To(sw.Nominee.Email)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTML, "The vault owner")
}

type invalidatingDirectory struct {
	deadman.OwnerDirectory
	invalidated []string
}

func (d *invalidatingDirectory) Invalidate(ref string) {
	d.invalidated = append(d.invalidated, ref)
}

func TestUpsertOwner(t *testing.T) {
	dir := &invalidatingDirectory{}
	h := testutil.NewHarness(t, func(d *deadman.Deps) {
		dir.OwnerDirectory = d.Directory
		d.Directory = dir
	})
	ctx := context.Background()

	require.NoError(t, h.Service.UpsertOwner(ctx, "alice", "alice@example.com"))
	require.NoError(t, h.Service.UpsertOwner(ctx, "alice", " alice@new.example.com "))

	email, err := h.Store.ResolveEmail(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", email)
	assert.Equal(t, []string{"alice", "alice"}, dir.invalidated)

	assert.ErrorIs(t, h.Service.UpsertOwner(ctx, "", "a@example.com"), apperrors.ErrConfiguration)
	assert.ErrorIs(t, h.Service.UpsertOwner(ctx, "bob", "bob"), apperrors.ErrConfiguration)
}

func TestGetHistory(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	sw := h.AddSwitch(t, testutil.NewSwitch(h.Clock).CheckedInDaysAgo(140))

	_, err := h.Service.RunScan(ctx)
	require.NoError(t, err)
	_, err = h.Service.CheckIn(ctx, sw.ID, deadman.Origin{Source: "api"})
	require.NoError(t, err)

	hist, err := h.Service.GetHistory(ctx, sw.ID)
	require.NoError(t, err)
	require.Len(t, hist.Notifications, 1)
	assert.Equal(t, deadman.KindWarning, hist.Notifications[0].Kind)
	require.Len(t, hist.CheckIns, 1)

	_, err = h.Service.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRunScanSingleFlight(t *testing.T) {
	hs := &hookedStore{listEntered: make(chan struct{}), listRelease: make(chan struct{})}
	h := testutil.NewHarness(t, withHookedStore(hs))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = h.Service.RunScan(ctx)
	}()

	<-hs.listEntered
	_, err := h.Service.RunScan(ctx)
	assert.ErrorIs(t, err, apperrors.ErrScanInProgress)

	close(hs.listRelease)
	wg.Wait()
	require.NoError(t, firstErr)
}

func TestRunScanHonoursDistributedLock(t *testing.T) {
	held := &stubLock{ok: false}
	h := testutil.NewHarness(t, func(d *deadman.Deps) { d.ScanLock = held })
	_, err := h.Service.RunScan(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrScanInProgress)

	broken := &stubLock{err: errUnavailable}
	h = testutil.NewHarness(t, func(d *deadman.Deps) { d.ScanLock = broken })
	_, err = h.Service.RunScan(context.Background())
	assert.ErrorIs(t, err, errUnavailable)
	assert.False(t, errors.Is(err, apperrors.ErrScanInProgress))

	free := &stubLock{ok: true}
	h = testutil.NewHarness(t, func(d *deadman.Deps) { d.ScanLock = free })
	_, err = h.Service.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, free.released)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	mem := store.NewMemory()
	full := deadman.Deps{
		Switches:  mem,
		Ledger:    mem,
		CheckIns:  mem,
		Directory: mem,
		Channel:   testutil.NewRecordingChannel(),
	}
	_, err := deadman.NewService(full)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*deadman.Deps){
		"switches":  func(d *deadman.Deps) { d.Switches = nil },
		"ledger":    func(d *deadman.Deps) { d.Ledger = nil },
		"check-ins": func(d *deadman.Deps) { d.CheckIns = nil },
		"directory": func(d *deadman.Deps) { d.Directory = nil },
		"channel":   func(d *deadman.Deps) { d.Channel = nil },
	} {
		t.Run(name, func(t *testing.T) {
			d := full
			mutate(&d)
			_, err := deadman.NewService(d)
			assert.Error(t, err)
		})
	}
}
