package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/middleware"
)

// Service names as they appear in procedure paths.
const (
	SwitchServiceName = "legacyvault.v1.SwitchService"
	AccessServiceName = "legacyvault.v1.AccessService"
)

// Procedure paths.
const (
	ConfigureSwitchProcedure      = "/" + SwitchServiceName + "/ConfigureSwitch"
	SetActiveProcedure            = "/" + SwitchServiceName + "/SetActive"
	CheckInProcedure              = "/" + SwitchServiceName + "/CheckIn"
	GetStatusProcedure            = "/" + SwitchServiceName + "/GetStatus"
	RunScanProcedure              = "/" + SwitchServiceName + "/RunScan"
	SendTestNotificationProcedure = "/" + SwitchServiceName + "/SendTestNotification"
	UpsertOwnerProcedure          = "/" + SwitchServiceName + "/UpsertOwner"
	GetHistoryProcedure           = "/" + SwitchServiceName + "/GetHistory"

	ValidateAccessTokenProcedure = "/" + AccessServiceName + "/ValidateAccessToken"
)

// switchServer implements the SwitchService procedures.
type switchServer struct {
	svc        *deadman.Service
	trustProxy bool
}

func (s *switchServer) ConfigureSwitch(
	ctx context.Context,
	req *connect.Request[ConfigureSwitchRequest],
) (*connect.Response[SwitchView], error) {
	m := req.Msg
	sw, err := s.svc.ConfigureSwitch(ctx, deadman.ConfigureParams{
		OwnerRef: m.OwnerRef,
		Nominee: deadman.Nominee{
			Email:    m.NomineeEmail,
			Name:     m.NomineeName,
			Relation: m.NomineeRelation,
		},
		PersonalMessage:      m.PersonalMessage,
		InactivityPeriodDays: m.InactivityPeriodDays,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSwitchView(sw)), nil
}

func (s *switchServer) SetActive(
	ctx context.Context,
	req *connect.Request[SetActiveRequest],
) (*connect.Response[SwitchView], error) {
	if req.Msg.SwitchID == "" {
		return nil, apperrors.Configuration("set_active", "switch_id is required")
	}
	sw, err := s.svc.SetActive(ctx, req.Msg.SwitchID, req.Msg.Active)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toSwitchView(sw)), nil
}

func (s *switchServer) CheckIn(
	ctx context.Context,
	req *connect.Request[SwitchRef],
) (*connect.Response[deadman.CheckInResult], error) {
	origin := s.originOf(req.Peer(), req.Header())

	var (
		res *deadman.CheckInResult
		err error
	)
	switch {
	case req.Msg.SwitchID != "":
		res, err = s.svc.CheckIn(ctx, req.Msg.SwitchID, origin)
	case req.Msg.OwnerRef != "":
		res, err = s.svc.CheckInOwner(ctx, req.Msg.OwnerRef, origin)
	default:
		err = apperrors.Configuration("checkin", "switch_id or owner_ref is required")
	}
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(res), nil
}

func (s *switchServer) GetStatus(
	ctx context.Context,
	req *connect.Request[SwitchRef],
) (*connect.Response[deadman.Status], error) {
	var (
		st  *deadman.Status
		err error
	)
	switch {
	case req.Msg.SwitchID != "":
		st, err = s.svc.GetStatus(ctx, req.Msg.SwitchID)
	case req.Msg.OwnerRef != "":
		st, err = s.svc.GetStatusByOwner(ctx, req.Msg.OwnerRef)
	default:
		err = apperrors.Configuration("status", "switch_id or owner_ref is required")
	}
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(st), nil
}

func (s *switchServer) RunScan(
	ctx context.Context,
	_ *connect.Request[Empty],
) (*connect.Response[ScanReportView], error) {
	// The sweep must finish even if the caller hangs up.
	report, err := s.svc.RunScan(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(toScanReportView(report)), nil
}

func (s *switchServer) SendTestNotification(
	ctx context.Context,
	req *connect.Request[SwitchRef],
) (*connect.Response[deadman.NotificationRecord], error) {
	if req.Msg.SwitchID == "" {
		return nil, apperrors.Configuration("test_notification", "switch_id is required")
	}
	rec, err := s.svc.SendTestNotification(ctx, req.Msg.SwitchID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(rec), nil
}

func (s *switchServer) UpsertOwner(
	ctx context.Context,
	req *connect.Request[UpsertOwnerRequest],
) (*connect.Response[Empty], error) {
	if err := s.svc.UpsertOwner(ctx, req.Msg.OwnerRef, req.Msg.Email); err != nil {
		return nil, err
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *switchServer) GetHistory(
	ctx context.Context,
	req *connect.Request[SwitchRef],
) (*connect.Response[deadman.History], error) {
	if req.Msg.SwitchID == "" {
		return nil, apperrors.Configuration("history", "switch_id is required")
	}
	h, err := s.svc.GetHistory(ctx, req.Msg.SwitchID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(h), nil
}

// accessServer implements the AccessService used by nominees.
type accessServer struct {
	svc *deadman.Service
}

func (a *accessServer) ValidateAccessToken(
	ctx context.Context,
	req *connect.Request[ValidateAccessTokenRequest],
) (*connect.Response[deadman.Grant], error) {
	grant, err := a.svc.ValidateAccessToken(ctx, req.Msg.Token)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(grant), nil
}

// originOf records the caller for the check-in audit trail. Forwarding
// headers are honoured under the same trust setting as the rate limiter.
func (s *switchServer) originOf(peer connect.Peer, header http.Header) deadman.Origin {
	return deadman.Origin{
		IP:        middleware.ClientIP(header, peer.Addr, s.trustProxy),
		UserAgent: header.Get("User-Agent"),
		Source:    "api",
	}
}
