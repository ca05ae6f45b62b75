package deadman

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/crypto"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// Access validation outcomes reported to the observer.
const (
	AccessGranted  = "granted"
	AccessNotFound = "not_found"
	AccessExpired  = "expired"
	AccessError    = "error"
)

// Grant is the delegated access resolved from a valid token.
type Grant struct {
	SwitchID        string    `json:"switch_id"`
	Nominee         Nominee   `json:"nominee"`
	OwnerEmail      string    `json:"owner_email"`
	PersonalMessage string    `json:"personal_message,omitempty"`
	TriggeredAt     time.Time `json:"triggered_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	// MaterialRef is what the material-retrieval side uses to fetch the
	// protected payload. It is the owner reference.
	MaterialRef string `json:"material_ref"`
}

// TokenValidator resolves presented access tokens.
//
// Stores index the token digest, never the secret, so lookup is an exact
// match on a value derived through a keyed hash. The digest is compared
// again in constant time before a grant is issued.
type TokenValidator struct {
	store     SwitchStore
	directory OwnerDirectory
	clock     Clock
	observer  Observer
}

func NewTokenValidator(store SwitchStore, directory OwnerDirectory, clock Clock, observer Observer) *TokenValidator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &TokenValidator{store: store, directory: directory, clock: clock, observer: observer}
}

// Validate returns a Grant, ErrTokenNotFound or ErrTokenExpired.
func (v *TokenValidator) Validate(ctx context.Context, token string) (*Grant, error) {
	grant, err := v.validate(ctx, token)
	switch {
	case err == nil:
		v.observer.AccessValidated(AccessGranted)
	case errors.Is(err, apperrors.ErrNotFound):
		v.observer.AccessValidated(AccessNotFound)
	case errors.Is(err, apperrors.ErrTokenExpired):
		v.observer.AccessValidated(AccessExpired)
	default:
		v.observer.AccessValidated(AccessError)
	}
	return grant, err
}

func (v *TokenValidator) validate(ctx context.Context, token string) (*Grant, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.ErrTokenNotFound
	}
	digest := crypto.TokenDigest(token)

	sw, err := v.store.GetSwitchByTokenDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrTokenNotFound
		}
		return nil, apperrors.Store("access.lookup", err)
	}
	if !sw.IsTriggered || !crypto.DigestsEqual(sw.TokenDigest, digest) {
		return nil, apperrors.ErrTokenNotFound
	}
	if sw.TokenExpiresAt == nil || sw.TokenExpiresAt.Before(v.clock.Now()) {
		return nil, apperrors.ErrTokenExpired
	}

	email, err := v.directory.ResolveEmail(ctx, sw.OwnerRef)
	if err != nil {
		return nil, apperrors.Store("access.owner", err)
	}

	grant := &Grant{
		SwitchID:        sw.ID,
		Nominee:         sw.Nominee,
		OwnerEmail:      email,
		PersonalMessage: sw.PersonalMessage,
		ExpiresAt:       *sw.TokenExpiresAt,
		MaterialRef:     sw.OwnerRef,
	}
	if sw.TriggeredAt != nil {
		grant.TriggeredAt = *sw.TriggeredAt
	}
	return grant, nil
}
