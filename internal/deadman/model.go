// Package deadman implements the inactivity switch: classifying owner
// silence, sending staged reminders, triggering delegated access, resetting
// on check-in and validating the access tokens issued on trigger.
package deadman

import "time"

// Fixed thresholds and windows. They are part of the interoperable contract
// with existing deployments and must not be made configurable.
const (
	WarningPercent      = 75
	FinalWarningPercent = 90
	TriggerPercent      = 100

	DedupWindow   = 7 * 24 * time.Hour
	TokenValidity = 30 * 24 * time.Hour

	DefaultInactivityPeriodDays = 180
	// MaxInactivityPeriodDays bounds configured periods to one hundred years.
	MaxInactivityPeriodDays = 36500
)

// Nominee is the delegate who receives access when a switch triggers.
type Nominee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// Switch is the inactivity timer for one owner.
//
// Only a digest of the access token is kept. The secret itself exists only
// in the message sent to the nominee.
type Switch struct {
	ID                   string
	OwnerRef             string
	Nominee              Nominee
	PersonalMessage      string
	InactivityPeriodDays int

	LastCheckIn *time.Time
	IsActive    bool
	IsTriggered bool

	TokenDigest    string
	TokenExpiresAt *time.Time
	TriggeredAt    *time.Time

	// Version increases on every successful update and is the
	// compare-and-swap key for ConditionalUpdate.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers never share time pointers.
func (s *Switch) Clone() *Switch {
	if s == nil {
		return nil
	}
	c := *s
	c.LastCheckIn = cloneTime(s.LastCheckIn)
	c.TokenExpiresAt = cloneTime(s.TokenExpiresAt)
	c.TriggeredAt = cloneTime(s.TriggeredAt)
	return &c
}

// Eligible reports whether the scan orchestrator should consider the switch.
func (s *Switch) Eligible() bool {
	return s.IsActive && !s.IsTriggered
}

// TokenState is the token portion written by a trigger.
type TokenState struct {
	Digest      string
	ExpiresAt   time.Time
	TriggeredAt time.Time
}

// SwitchPatch describes a partial update. Nil fields are left unchanged.
type SwitchPatch struct {
	LastCheckIn      *time.Time
	ClearLastCheckIn bool

	IsActive    *bool
	IsTriggered *bool

	Token      *TokenState
	ClearToken bool

	Nominee              *Nominee
	PersonalMessage      *string
	InactivityPeriodDays *int
}

// Apply writes the patch onto s. It does not touch Version or UpdatedAt;
// stores own those.
func (p SwitchPatch) Apply(s *Switch) {
	if p.ClearLastCheckIn {
		s.LastCheckIn = nil
	}
	if p.LastCheckIn != nil {
		s.LastCheckIn = cloneTime(p.LastCheckIn)
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	if p.IsTriggered != nil {
		s.IsTriggered = *p.IsTriggered
	}
	if p.ClearToken {
		s.TokenDigest = ""
		s.TokenExpiresAt = nil
		s.TriggeredAt = nil
	}
	if p.Token != nil {
		s.TokenDigest = p.Token.Digest
		s.TokenExpiresAt = cloneTime(&p.Token.ExpiresAt)
		s.TriggeredAt = cloneTime(&p.Token.TriggeredAt)
	}
	if p.Nominee != nil {
		s.Nominee = *p.Nominee
	}
	if p.PersonalMessage != nil {
		s.PersonalMessage = *p.PersonalMessage
	}
	if p.InactivityPeriodDays != nil {
		s.InactivityPeriodDays = *p.InactivityPeriodDays
	}
}

// NotificationKind identifies what a ledger entry was sent for.
type NotificationKind string

const (
	KindWarning      NotificationKind = "warning"
	KindFinalWarning NotificationKind = "final_warning"
	KindTriggered    NotificationKind = "triggered"
	KindTest         NotificationKind = "test"
)

// NotificationStatus is the delivery outcome of one attempt.
type NotificationStatus string

const (
	StatusSent   NotificationStatus = "sent"
	StatusFailed NotificationStatus = "failed"
)

// NotificationRecord is an append-only ledger entry.
type NotificationRecord struct {
	ID        string             `json:"id"`
	SwitchID  string             `json:"switch_id"`
	Kind      NotificationKind   `json:"kind"`
	Recipient string             `json:"recipient"`
	SentAt    time.Time          `json:"sent_at"`
	Status    NotificationStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
}

// Origin describes where a check-in came from.
type Origin struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Source    string `json:"source,omitempty"` // api, cli, email-link
}

// CheckInEvent is an append-only audit entry.
type CheckInEvent struct {
	ID       string    `json:"id"`
	SwitchID string    `json:"switch_id"`
	At       time.Time `json:"at"`
	Origin   Origin    `json:"origin"`
}

// Owner maps an owner reference to a contact address.
type Owner struct {
	Ref       string
	Email     string
	UpdatedAt time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func ptr[T any](v T) *T { return &v }
