// Package middleware provides HTTP middleware for the API server
package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP
	RequestsPerSecond float64
	// BurstSize is the maximum burst size
	BurstSize int
	// CleanupInterval is how often to clean up old limiters
	CleanupInterval time.Duration
	// MaxAge is how long to keep unused limiters
	MaxAge time.Duration
	// TrustProxy makes X-Forwarded-For and X-Real-IP authoritative. Leave it
	// off unless a proxy that overwrites those headers sits in front.
	TrustProxy bool
}

// DefaultRateLimitConfig returns the limits used for the access endpoint.
// Token guessing is the threat, so the defaults are tight.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
		MaxAge:            10 * time.Minute,
	}
}

// ipLimiter holds a rate limiter and last access time for an IP
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-IP rate limiting
type RateLimiter struct {
	config   *RateLimitConfig
	limiters map[string]*ipLimiter
	mu       sync.Mutex
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter creates a new rate limiter with the given config. Zero
// fields fall back to DefaultRateLimitConfig. Call Stop to end the cleanup
// goroutine.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	cfg := *DefaultRateLimitConfig()
	if config != nil {
		if config.RequestsPerSecond > 0 {
			cfg.RequestsPerSecond = config.RequestsPerSecond
		}
		if config.BurstSize > 0 {
			cfg.BurstSize = config.BurstSize
		}
		if config.CleanupInterval > 0 {
			cfg.CleanupInterval = config.CleanupInterval
		}
		if config.MaxAge > 0 {
			cfg.MaxAge = config.MaxAge
		}
		cfg.TrustProxy = config.TrustProxy
	}

	rl := &RateLimiter{
		config:   &cfg,
		limiters: make(map[string]*ipLimiter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// getLimiter returns the rate limiter for the given IP, creating one if needed
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if il, exists := rl.limiters[ip]; exists {
		il.lastSeen = now
		return il.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	rl.limiters[ip] = &ipLimiter{
		limiter:  limiter,
		lastSeen: now,
	}

	return limiter
}

// cleanupLoop periodically removes old limiters
func (rl *RateLimiter) cleanupLoop() {
	defer close(rl.done)

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup removes limiters that haven't been used recently
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.MaxAge)
	for ip, il := range rl.limiters {
		if il.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// Len reports how many client IPs are currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	<-rl.done
}

// Middleware returns an HTTP middleware that applies rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r.Header, r.RemoteAddr, rl.config.TrustProxy)
		limiter := rl.getLimiter(ip)

		if !limiter.Allow() {
			logging.Warn("Access rate limit exceeded",
				logging.String("client_ip", ip),
				logging.String("path", r.URL.Path),
			)
			retry := int(math.Ceil(1 / rl.config.RequestsPerSecond))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP from request headers and the peer
// address. Forwarding headers are only read when trustProxy is set.
func ClientIP(header http.Header, remoteAddr string, trustProxy bool) string {
	if trustProxy {
		// First XFF entry is the original client
		if xff := header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}
