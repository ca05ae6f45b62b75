package api

import (
	"time"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// Empty is used by procedures that take or return nothing.
type Empty struct{}

// ConfigureSwitchRequest creates or updates the switch of an owner.
type ConfigureSwitchRequest struct {
	OwnerRef             string `json:"owner_ref"`
	NomineeEmail         string `json:"nominee_email"`
	NomineeName          string `json:"nominee_name,omitempty"`
	NomineeRelation      string `json:"nominee_relation,omitempty"`
	PersonalMessage      string `json:"personal_message,omitempty"`
	InactivityPeriodDays int    `json:"inactivity_period_days,omitempty"`
}

// SetActiveRequest enables or disables a switch.
type SetActiveRequest struct {
	SwitchID string `json:"switch_id"`
	Active   bool   `json:"active"`
}

// SwitchRef addresses a switch by id or, where the procedure allows it, by
// owner reference.
type SwitchRef struct {
	SwitchID string `json:"switch_id,omitempty"`
	OwnerRef string `json:"owner_ref,omitempty"`
}

// UpsertOwnerRequest records an owner's contact address.
type UpsertOwnerRequest struct {
	OwnerRef string `json:"owner_ref"`
	Email    string `json:"email"`
}

// ValidateAccessTokenRequest carries the token from a nominee's access link.
type ValidateAccessTokenRequest struct {
	Token string `json:"token"`
}

// SwitchView is the client-facing form of a switch. The token digest is
// never exposed.
type SwitchView struct {
	ID                   string          `json:"id"`
	OwnerRef             string          `json:"owner_ref"`
	Nominee              deadman.Nominee `json:"nominee"`
	PersonalMessage      string          `json:"personal_message,omitempty"`
	InactivityPeriodDays int             `json:"inactivity_period_days"`
	IsActive             bool            `json:"is_active"`
	IsTriggered          bool            `json:"is_triggered"`
	LastCheckIn          *time.Time      `json:"last_check_in,omitempty"`
	TriggeredAt          *time.Time      `json:"triggered_at,omitempty"`
	TokenExpiresAt       *time.Time      `json:"token_expires_at,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func toSwitchView(sw *deadman.Switch) *SwitchView {
	return &SwitchView{
		ID:                   sw.ID,
		OwnerRef:             sw.OwnerRef,
		Nominee:              sw.Nominee,
		PersonalMessage:      sw.PersonalMessage,
		InactivityPeriodDays: sw.InactivityPeriodDays,
		IsActive:             sw.IsActive,
		IsTriggered:          sw.IsTriggered,
		LastCheckIn:          sw.LastCheckIn,
		TriggeredAt:          sw.TriggeredAt,
		TokenExpiresAt:       sw.TokenExpiresAt,
		Version:              sw.Version,
		CreatedAt:            sw.CreatedAt,
		UpdatedAt:            sw.UpdatedAt,
	}
}

// ScanReportView summarizes a scan. Per-switch errors are sanitized.
type ScanReportView struct {
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
	Checked      int                    `json:"checked"`
	Warned       int                    `json:"warned"`
	FinalWarned  int                    `json:"final_warned"`
	Triggered    int                    `json:"triggered"`
	Skipped      int                    `json:"skipped"`
	Deduplicated int                    `json:"deduplicated"`
	Results      []deadman.SwitchResult `json:"results,omitempty"`
	Errors       []ScanErrorView        `json:"errors,omitempty"`
}

// ScanErrorView is one switch that failed during a scan.
type ScanErrorView struct {
	SwitchID string `json:"switch_id"`
	Error    string `json:"error"`
}

func toScanReportView(r *deadman.ScanReport) *ScanReportView {
	v := &ScanReportView{
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Checked:      r.Checked,
		Warned:       r.Warned,
		FinalWarned:  r.FinalWarned,
		Triggered:    r.Triggered,
		Skipped:      r.Skipped,
		Deduplicated: r.Deduplicated,
		Results:      r.Results,
	}
	for _, e := range r.Errors {
		v.Errors = append(v.Errors, ScanErrorView{
			SwitchID: e.SwitchID,
			Error:    apperrors.SanitizeError(e.Err),
		})
	}
	return v
}
