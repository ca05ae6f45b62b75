package deadman_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/legacyvault/internal/crypto"
	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/notify"
	"github.com/lcrostarosa/legacyvault/internal/store"
	"github.com/lcrostarosa/legacyvault/internal/testutil"
)

type triggerFixture struct {
	clock    *testutil.Clock
	store    *store.Memory
	channel  *testutil.RecordingChannel
	executor *deadman.TriggerExecutor
}

func newTriggerFixture(t *testing.T, tokens deadman.TokenSource) *triggerFixture {
	t.Helper()
	f := &triggerFixture{
		clock:   testutil.NewClock(testutil.Epoch),
		store:   store.NewMemory(),
		channel: testutil.NewRecordingChannel(),
	}
	renderer := notify.MustRenderer()
	links := deadman.Links{BaseURL: "https://vault.example.com/"}
	dispatcher := deadman.NewDispatcher(f.store, f.channel, renderer, f.clock, links, nil)
	f.executor = deadman.NewTriggerExecutor(f.store, dispatcher, renderer, f.clock, links, nil, tokens)
	return f
}

func TestTriggerPersistsDigestAndNotifiesNominee(t *testing.T) {
	f := newTriggerFixture(t, func() (crypto.AccessToken, error) {
		return crypto.AccessToken{Secret: "fixed-secret", Digest: crypto.TokenDigest("fixed-secret")}, nil
	})
	sw := testutil.NewSwitch(f.clock).CheckedInDaysAgo(181).Save(t, f.store)

	res, err := f.executor.Execute(context.Background(), sw, "owner@example.com")
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Equal(t, "fixed-secret", res.AccessToken)
	assert.Equal(t, sw.Version+1, res.Switch.Version)
	assert.True(t, res.ExpiresAt.Equal(f.clock.Now().Add(deadman.TokenValidity)))

	got, err := f.store.GetSwitch(context.Background(), sw.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTriggered)
	assert.Equal(t, crypto.TokenDigest("fixed-secret"), got.TokenDigest)
	assert.NotContains(t, got.TokenDigest, "fixed-secret")

	msgs := f.channel.To(sw.Nominee.Email)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTML, "https://vault.example.com/vault/access/fixed-secret")
	assert.Equal(t, "fixed-secret", testutil.AccessTokenFrom(msgs[0]))
}

func TestTriggerStaleVersionConflicts(t *testing.T) {
	f := newTriggerFixture(t, nil)
	ctx := context.Background()
	sw := testutil.NewSwitch(f.clock).CheckedInDaysAgo(200).Save(t, f.store)

	now := f.clock.Now()
	_, err := f.store.ConditionalUpdate(ctx, sw.ID, sw.Version, deadman.SwitchPatch{LastCheckIn: &now})
	require.NoError(t, err)

	res, err := f.executor.Execute(ctx, sw, "owner@example.com")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, f.channel.Sent())

	got, err := f.store.GetSwitch(ctx, sw.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTriggered)
}

func TestTriggerTokenFailureChangesNothing(t *testing.T) {
	boom := errors.New("entropy exhausted")
	f := newTriggerFixture(t, func() (crypto.AccessToken, error) { return crypto.AccessToken{}, boom })
	sw := testutil.NewSwitch(f.clock).CheckedInDaysAgo(200).Save(t, f.store)

	_, err := f.executor.Execute(context.Background(), sw, "owner@example.com")
	assert.ErrorIs(t, err, boom)

	got, err := f.store.GetSwitch(context.Background(), sw.ID)
	require.NoError(t, err)
	assert.False(t, got.IsTriggered)
	assert.Equal(t, sw.Version, got.Version)
}

func TestTriggerDeliveryFailureReturnsResult(t *testing.T) {
	f := newTriggerFixture(t, nil)
	sw := testutil.NewSwitch(f.clock).CheckedInDaysAgo(200).Save(t, f.store)
	f.channel.FailAll(true)

	res, err := f.executor.Execute(context.Background(), sw, "owner@example.com")
	require.NotNil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrDelivery)
	assert.False(t, res.Notified)
	assert.NotEmpty(t, res.AccessToken)
	assert.True(t, res.Switch.IsTriggered)
}
