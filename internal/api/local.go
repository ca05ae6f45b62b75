package api

import (
	"context"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
)

// Backend is the set of switch operations offered both by a remote server
// (Client) and by an in-process service (Local).
type Backend interface {
	ConfigureSwitch(ctx context.Context, req ConfigureSwitchRequest) (*SwitchView, error)
	SetActive(ctx context.Context, switchID string, active bool) (*SwitchView, error)
	CheckIn(ctx context.Context, ref SwitchRef) (*deadman.CheckInResult, error)
	GetStatus(ctx context.Context, ref SwitchRef) (*deadman.Status, error)
	RunScan(ctx context.Context) (*ScanReportView, error)
	SendTestNotification(ctx context.Context, switchID string) (*deadman.NotificationRecord, error)
	UpsertOwner(ctx context.Context, ref, email string) error
	GetHistory(ctx context.Context, switchID string) (*deadman.History, error)
	ValidateAccessToken(ctx context.Context, token string) (*deadman.Grant, error)
}

var (
	_ Backend = (*Client)(nil)
	_ Backend = (*Local)(nil)
)

// Local runs Backend operations against a service in the same process.
// Check-ins are recorded with the given source.
type Local struct {
	svc    *deadman.Service
	source string
}

// NewLocal wraps svc. source labels check-ins, e.g. "cli".
func NewLocal(svc *deadman.Service, source string) *Local {
	return &Local{svc: svc, source: source}
}

func (l *Local) ConfigureSwitch(ctx context.Context, req ConfigureSwitchRequest) (*SwitchView, error) {
	sw, err := l.svc.ConfigureSwitch(ctx, deadman.ConfigureParams{
		OwnerRef: req.OwnerRef,
		Nominee: deadman.Nominee{
			Email:    req.NomineeEmail,
			Name:     req.NomineeName,
			Relation: req.NomineeRelation,
		},
		PersonalMessage:      req.PersonalMessage,
		InactivityPeriodDays: req.InactivityPeriodDays,
	})
	if err != nil {
		return nil, err
	}
	return toSwitchView(sw), nil
}

func (l *Local) SetActive(ctx context.Context, switchID string, active bool) (*SwitchView, error) {
	sw, err := l.svc.SetActive(ctx, switchID, active)
	if err != nil {
		return nil, err
	}
	return toSwitchView(sw), nil
}

func (l *Local) CheckIn(ctx context.Context, ref SwitchRef) (*deadman.CheckInResult, error) {
	origin := deadman.Origin{Source: l.source}
	switch {
	case ref.SwitchID != "":
		return l.svc.CheckIn(ctx, ref.SwitchID, origin)
	case ref.OwnerRef != "":
		return l.svc.CheckInOwner(ctx, ref.OwnerRef, origin)
	default:
		return nil, apperrors.Configuration("checkin", "switch_id or owner_ref is required")
	}
}

func (l *Local) GetStatus(ctx context.Context, ref SwitchRef) (*deadman.Status, error) {
	switch {
	case ref.SwitchID != "":
		return l.svc.GetStatus(ctx, ref.SwitchID)
	case ref.OwnerRef != "":
		return l.svc.GetStatusByOwner(ctx, ref.OwnerRef)
	default:
		return nil, apperrors.Configuration("status", "switch_id or owner_ref is required")
	}
}

func (l *Local) RunScan(ctx context.Context) (*ScanReportView, error) {
	report, err := l.svc.RunScan(ctx)
	if err != nil {
		return nil, err
	}
	return toScanReportView(report), nil
}

func (l *Local) SendTestNotification(ctx context.Context, switchID string) (*deadman.NotificationRecord, error) {
	return l.svc.SendTestNotification(ctx, switchID)
}

func (l *Local) UpsertOwner(ctx context.Context, ref, email string) error {
	return l.svc.UpsertOwner(ctx, ref, email)
}

func (l *Local) GetHistory(ctx context.Context, switchID string) (*deadman.History, error) {
	return l.svc.GetHistory(ctx, switchID)
}

func (l *Local) ValidateAccessToken(ctx context.Context, token string) (*deadman.Grant, error) {
	return l.svc.ValidateAccessToken(ctx, token)
}
