package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func do(h http.Handler, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/vault/access/abc", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	defer rl.Stop()
	h := rl.Middleware(okHandler)

	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1234", nil).Code)

	rec := do(h, "10.0.0.1:5678", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())

	// Other clients have their own budget.
	assert.Equal(t, http.StatusOK, do(h, "10.0.0.2:1234", nil).Code)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterIgnoresForwardedHeadersByDefault(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	defer rl.Stop()
	h := rl.Middleware(okHandler)

	assert.Equal(t, http.StatusOK, do(h, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.1.1.1"}).Code)
	// A spoofed header must not buy a fresh budget.
	assert.Equal(t, http.StatusTooManyRequests,
		do(h, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "2.2.2.2"}).Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		header     map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.7:443", nil, false, "192.0.2.7"},
		{"remote without port", "192.0.2.7", nil, false, "192.0.2.7"},
		{"xff untrusted", "192.0.2.7:443", map[string]string{"X-Forwarded-For": "203.0.113.9"}, false, "192.0.2.7"},
		{"xff first entry", "192.0.2.7:443", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, true, "203.0.113.9"},
		{"real ip", "192.0.2.7:443", map[string]string{"X-Real-IP": " 198.51.100.3 "}, true, "198.51.100.3"},
		{"trusted without headers", "192.0.2.7:443", nil, true, "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req.Header, req.RemoteAddr, tt.trustProxy))
		})
	}
}

func TestRateLimiterCleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{MaxAge: time.Minute})
	defer rl.Stop()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	rl.getLimiter("10.0.0.1")
	require.Equal(t, 1, rl.Len())

	rl.now = func() time.Time { return base.Add(30 * time.Second) }
	rl.cleanup()
	assert.Equal(t, 1, rl.Len())

	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	rl.cleanup()
	assert.Equal(t, 0, rl.Len())
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(nil)
	assert.Equal(t, *DefaultRateLimitConfig(), *rl.config)
	rl.Stop()
	rl.Stop()
}
