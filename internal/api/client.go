package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
)

// Client calls a remote legacyvault server.
type Client struct {
	configure  *connect.Client[ConfigureSwitchRequest, SwitchView]
	setActive  *connect.Client[SetActiveRequest, SwitchView]
	checkIn    *connect.Client[SwitchRef, deadman.CheckInResult]
	status     *connect.Client[SwitchRef, deadman.Status]
	runScan    *connect.Client[Empty, ScanReportView]
	testNotify *connect.Client[SwitchRef, deadman.NotificationRecord]
	owner      *connect.Client[UpsertOwnerRequest, Empty]
	history    *connect.Client[SwitchRef, deadman.History]
	access     *connect.Client[ValidateAccessTokenRequest, deadman.Grant]
}

// NewClient creates a client for baseURL. apiKey may be empty for servers
// in dev mode or when only ValidateAccessToken is used.
func NewClient(httpClient connect.HTTPClient, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}
	if apiKey != "" {
		opts = append(opts, connect.WithInterceptors(apiKeyInterceptor(apiKey)))
	}

	return &Client{
		configure:  connect.NewClient[ConfigureSwitchRequest, SwitchView](httpClient, baseURL+ConfigureSwitchProcedure, opts...),
		setActive:  connect.NewClient[SetActiveRequest, SwitchView](httpClient, baseURL+SetActiveProcedure, opts...),
		checkIn:    connect.NewClient[SwitchRef, deadman.CheckInResult](httpClient, baseURL+CheckInProcedure, opts...),
		status:     connect.NewClient[SwitchRef, deadman.Status](httpClient, baseURL+GetStatusProcedure, opts...),
		runScan:    connect.NewClient[Empty, ScanReportView](httpClient, baseURL+RunScanProcedure, opts...),
		testNotify: connect.NewClient[SwitchRef, deadman.NotificationRecord](httpClient, baseURL+SendTestNotificationProcedure, opts...),
		owner:      connect.NewClient[UpsertOwnerRequest, Empty](httpClient, baseURL+UpsertOwnerProcedure, opts...),
		history:    connect.NewClient[SwitchRef, deadman.History](httpClient, baseURL+GetHistoryProcedure, opts...),
		access:     connect.NewClient[ValidateAccessTokenRequest, deadman.Grant](httpClient, baseURL+ValidateAccessTokenProcedure, opts...),
	}
}

func apiKeyInterceptor(key string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("X-API-Key", key)
			return next(ctx, req)
		}
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ConfigureSwitch(ctx context.Context, req ConfigureSwitchRequest) (*SwitchView, error) {
	return call(ctx, c.configure, &req)
}

func (c *Client) SetActive(ctx context.Context, switchID string, active bool) (*SwitchView, error) {
	return call(ctx, c.setActive, &SetActiveRequest{SwitchID: switchID, Active: active})
}

func (c *Client) CheckIn(ctx context.Context, ref SwitchRef) (*deadman.CheckInResult, error) {
	return call(ctx, c.checkIn, &ref)
}

func (c *Client) GetStatus(ctx context.Context, ref SwitchRef) (*deadman.Status, error) {
	return call(ctx, c.status, &ref)
}

func (c *Client) RunScan(ctx context.Context) (*ScanReportView, error) {
	return call(ctx, c.runScan, &Empty{})
}

func (c *Client) SendTestNotification(ctx context.Context, switchID string) (*deadman.NotificationRecord, error) {
	return call(ctx, c.testNotify, &SwitchRef{SwitchID: switchID})
}

func (c *Client) UpsertOwner(ctx context.Context, ref, email string) error {
	_, err := call(ctx, c.owner, &UpsertOwnerRequest{OwnerRef: ref, Email: email})
	return err
}

func (c *Client) GetHistory(ctx context.Context, switchID string) (*deadman.History, error) {
	return call(ctx, c.history, &SwitchRef{SwitchID: switchID})
}

func (c *Client) ValidateAccessToken(ctx context.Context, token string) (*deadman.Grant, error) {
	return call(ctx, c.access, &ValidateAccessTokenRequest{Token: token})
}
