package deadman

import (
	"context"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/crypto"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/logging"
	"github.com/lcrostarosa/legacyvault/internal/notify"
)

// TokenSource issues access tokens. crypto.NewAccessToken in production.
type TokenSource func() (crypto.AccessToken, error)

// TriggerResult is returned once the triggered state has been persisted.
type TriggerResult struct {
	Switch *Switch
	// AccessToken is the plaintext secret. It is only exposed here so the
	// caller that owns delivery can use it; it must never be logged.
	AccessToken string
	ExpiresAt   time.Time
	Notified    bool
}

// TriggerExecutor performs the one-way transition into the triggered state.
type TriggerExecutor struct {
	store      SwitchStore
	dispatcher *Dispatcher
	renderer   *notify.Renderer
	clock      Clock
	links      Links
	observer   Observer
	tokens     TokenSource
}

// NewTriggerExecutor wires a trigger executor. A nil token source uses
// crypto.NewAccessToken.
func NewTriggerExecutor(store SwitchStore, dispatcher *Dispatcher, renderer *notify.Renderer, clock Clock, links Links, observer Observer, tokens TokenSource) *TriggerExecutor {
	if observer == nil {
		observer = NopObserver{}
	}
	if tokens == nil {
		tokens = crypto.NewAccessToken
	}
	return &TriggerExecutor{
		store:      store,
		dispatcher: dispatcher,
		renderer:   renderer,
		clock:      clock,
		links:      links,
		observer:   observer,
		tokens:     tokens,
	}
}

// Execute triggers sw as last observed. The update is conditional on
// sw.Version, so a check-in that landed after the switch was read makes it
// fail with ErrConflict and nothing is sent. A conflict is not retried; the
// next scan re-evaluates the switch.
//
// If persisting succeeds but the nominee cannot be notified, Execute
// returns both a result and an ErrDelivery error. The switch stays
// triggered and the failure is not retried.
func (t *TriggerExecutor) Execute(ctx context.Context, sw *Switch, ownerEmail string) (*TriggerResult, error) {
	tok, err := t.tokens()
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	expires := now.Add(TokenValidity)

	updated, err := t.store.ConditionalUpdate(ctx, sw.ID, sw.Version, SwitchPatch{
		IsTriggered: ptr(true),
		Token: &TokenState{
			Digest:      tok.Digest,
			ExpiresAt:   expires,
			TriggeredAt: now,
		},
	})
	if err != nil {
		logging.Warn("Trigger not persisted",
			logging.String("switch_id", sw.ID),
			logging.Err(err),
		)
		return nil, apperrors.Store("trigger.persist", err)
	}

	t.observer.SwitchTriggered()
	logging.Info("Switch triggered",
		logging.String("switch_id", sw.ID),
		logging.Time("token_expires_at", expires),
	)

	result := &TriggerResult{Switch: updated, AccessToken: tok.Secret, ExpiresAt: expires}

	msg, err := t.renderer.Triggered(notify.TriggeredData{
		NomineeName:     sw.Nominee.Name,
		OwnerEmail:      ownerEmail,
		PersonalMessage: sw.PersonalMessage,
		AccessURL:       t.links.Access(tok.Secret),
		ExpiresAt:       expires,
	})
	if err != nil {
		_, err = t.dispatcher.record(ctx, sw.ID, KindTriggered, sw.Nominee.Email, err)
		return result, err
	}

	if _, err := t.dispatcher.Deliver(ctx, sw.ID, KindTriggered, sw.Nominee.Email, msg); err != nil {
		result.Notified = !apperrors.Is(err, apperrors.ErrDelivery)
		return result, err
	}
	result.Notified = true
	return result, nil
}
