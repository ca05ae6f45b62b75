package api

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIKey is required on every switch procedure
	APIKey string
	// DevMode disables authentication when true (for development only)
	DevMode bool
}

// publicProcedures are reachable without an API key. Nominees authenticate
// with the access token itself.
var publicProcedures = map[string]bool{
	ValidateAccessTokenProcedure: true,
}

// loggingInterceptor logs RPC calls
type loggingInterceptor struct{}

func newLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func (i *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		if err != nil {
			logging.Debug("RPC failed",
				logging.String("procedure", req.Spec().Procedure),
				logging.String("code", connect.CodeOf(err).String()),
				logging.Duration("elapsed", time.Since(start)),
			)
			return resp, err
		}
		logging.Debug("RPC served",
			logging.String("procedure", req.Spec().Procedure),
			logging.Duration("elapsed", time.Since(start)),
		)
		return resp, nil
	}
}

func (i *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next // No streaming RPCs in our API
}

func (i *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next // No streaming RPCs in our API
}

// errorInterceptor turns service errors into coded, sanitized connect errors.
type errorInterceptor struct{}

func newErrorInterceptor() connect.Interceptor {
	return &errorInterceptor{}
}

func (i *errorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, toConnectError(req.Spec().Procedure, err)
		}
		return resp, nil
	}
}

func (i *errorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *errorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

// authInterceptor validates API key authentication
type authInterceptor struct {
	config AuthConfig
}

func newAuthInterceptor(config AuthConfig) connect.Interceptor {
	return &authInterceptor{config: config}
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if i.config.DevMode || publicProcedures[req.Spec().Procedure] {
			return next(ctx, req)
		}
		if !i.authorized(req.Header().Get("X-API-Key"), req.Header().Get("Authorization")) {
			return nil, connect.NewError(connect.CodeUnauthenticated, nil)
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

// authorized accepts the key from X-API-Key or a Bearer Authorization
// header. With no key configured every request is denied.
func (i *authInterceptor) authorized(apiKey, authHeader string) bool {
	if i.config.APIKey == "" {
		return false
	}
	if apiKey == "" && strings.HasPrefix(authHeader, "Bearer ") {
		apiKey = strings.TrimPrefix(authHeader, "Bearer ")
	}
	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(i.config.APIKey)) == 1
}
