package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// DefaultRedisKey is the key scans contend on.
const DefaultRedisKey = "legacyvault:scan:lock"

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock is a SET NX PX lock for scans running on several hosts. While
// held, the TTL is refreshed every third of its length, so the TTL only
// bounds how long a crashed holder blocks others, not how long a scan runs.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedisLock uses an existing client. A non-positive ttl uses DefaultTTL.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// DialRedis creates a client for addr and a lock that owns it.
func DialRedis(addr, password string, db int, ttl time.Duration) *RedisLock {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	l := NewRedisLock(client, DefaultRedisKey, ttl)
	l.owned = true
	return l
}

// Ping checks connectivity.
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the client when the lock created it.
func (l *RedisLock) Close() error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}

// TryAcquire implements deadman.ScanLock.
func (l *RedisLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token, err := newHolderToken()
	if err != nil {
		return nil, false, err
	}

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	return releaseFunc("redis", func() error {
		close(stop)
		<-done
		// Release must happen even if the scan's context was cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}), true, nil
}

// keepAlive extends the lock until stop is closed or the lock is lost.
func (l *RedisLock) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := max(l.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			logging.Warn("Failed to extend scan lock",
				logging.String("key", l.key),
				logging.Err(err),
			)
		case n == 0:
			logging.Warn("Scan lock lost before the scan finished",
				logging.String("key", l.key),
			)
			return
		}
	}
}

func newHolderToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
