// Package api exposes the switch service over Connect-RPC with a JSON codec,
// plus plain HTTP routes for health, metrics and nominee access links.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
	apperrors "github.com/lcrostarosa/legacyvault/internal/errors"
	"github.com/lcrostarosa/legacyvault/internal/metrics"
	"github.com/lcrostarosa/legacyvault/internal/middleware"
	"github.com/lcrostarosa/legacyvault/internal/scheduler"
)

// Options configure a Server. Service is required.
type Options struct {
	Service *deadman.Service
	Auth    AuthConfig
	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS.
	CORSOrigin string
	// AccessLimit throttles the nominee access routes per client IP.
	AccessLimit *middleware.RateLimitConfig
	// TrustProxy takes check-in audit addresses from X-Forwarded-For and
	// X-Real-IP.
	TrustProxy bool

	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	// Ping reports store health for /health.
	Ping func() error
}

// Server wraps all Connect-RPC service handlers and HTTP routes
type Server struct {
	opts    Options
	limiter *middleware.RateLimiter
	handler http.Handler
}

// NewServer builds the handler tree. Call Close to stop the rate limiter.
func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("api: service is required")
	}
	s := &Server{
		opts:    opts,
		limiter: middleware.NewRateLimiter(opts.AccessLimit),
	}

	mux := http.NewServeMux()
	s.RegisterHandlers(mux)
	s.registerRoutes(mux)

	var h http.Handler = mux
	if opts.CORSOrigin != "" {
		h = withCORS(opts.CORSOrigin, h)
	}
	s.handler = withLogging(h)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

// RegisterHandlers mounts every procedure at its canonical path
// (e.g. /legacyvault.v1.SwitchService/CheckIn).
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(
			newLoggingInterceptor(),
			newAuthInterceptor(s.opts.Auth),
			newErrorInterceptor(),
		),
	}

	sw := &switchServer{svc: s.opts.Service, trustProxy: s.opts.TrustProxy}
	unary(mux, ConfigureSwitchProcedure, sw.ConfigureSwitch, opts)
	unary(mux, SetActiveProcedure, sw.SetActive, opts)
	unary(mux, CheckInProcedure, sw.CheckIn, opts)
	unary(mux, GetStatusProcedure, sw.GetStatus, opts)
	unary(mux, RunScanProcedure, sw.RunScan, opts)
	unary(mux, SendTestNotificationProcedure, sw.SendTestNotification, opts)
	unary(mux, UpsertOwnerProcedure, sw.UpsertOwner, opts)
	unary(mux, GetHistoryProcedure, sw.GetHistory, opts)

	access := &accessServer{svc: s.opts.Service}
	mux.Handle(ValidateAccessTokenProcedure, s.limiter.Middleware(
		connect.NewUnaryHandler(ValidateAccessTokenProcedure, access.ValidateAccessToken, opts...),
	))
}

func unary[Req, Res any](
	mux *http.ServeMux,
	procedure string,
	fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error),
	opts []connect.HandlerOption,
) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, opts...))
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /vault/access/{token}", s.limiter.Middleware(http.HandlerFunc(s.handleAccess)))
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Store     string           `json:"store"`
	Scheduler *SchedulerHealth `json:"scheduler,omitempty"`
}

// SchedulerHealth reports the scan scheduler.
type SchedulerHealth struct {
	Running   bool       `json:"running"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Store: "ok"}
	status := http.StatusOK

	if s.opts.Ping != nil {
		if err := s.opts.Ping(); err != nil {
			resp.Status = "degraded"
			resp.Store = apperrors.SanitizeError(err)
			status = http.StatusServiceUnavailable
		}
	}

	if s.opts.Scheduler != nil {
		st := s.opts.Scheduler.Status()
		sh := &SchedulerHealth{Running: st.Running, Schedule: st.Schedule}
		if !st.LastRun.IsZero() {
			sh.LastRun = &st.LastRun
		}
		if st.Running && !st.NextRun.IsZero() {
			sh.NextRun = &st.NextRun
		}
		if st.LastError != nil {
			sh.LastError = apperrors.SanitizeError(st.LastError)
		}
		resp.Scheduler = sh
	}

	jsonResponse(w, status, resp)
}

// handleAccess resolves the token in a nominee's access link.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	grant, err := s.opts.Service.ValidateAccessToken(r.Context(), r.PathValue("token"))
	if err != nil {
		jsonError(w, httpStatus(CodeOf(err)), apperrors.SanitizeError(err))
		return
	}
	jsonResponse(w, http.StatusOK, grant)
}

func httpStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument:
		return http.StatusBadRequest
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeFailedPrecondition:
		return http.StatusGone
	case connect.CodeAborted:
		return http.StatusConflict
	case connect.CodeResourceExhausted:
		return http.StatusTooManyRequests
	case connect.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}
