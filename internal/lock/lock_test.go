package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scan.lock")
	a := NewFileLock(path)
	b := NewFileLock(path)
	ctx := context.Background()

	release, ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second handle must not acquire a held lock")

	_, ok, err = a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "the same handle is not reentrant")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid=")

	release()
	release() // idempotent

	releaseB, ok, err := b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}

func TestFileLockHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := NewFileLock(filepath.Join(t.TempDir(), "scan.lock")).TryAcquire(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileLockUnlockWithoutLock(t *testing.T) {
	assert.NoError(t, NewFileLock(filepath.Join(t.TempDir(), "x.lock")).Unlock())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLockSingleHolder(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	a := NewRedisLock(client, "", time.Minute)
	b := NewRedisLock(client, "", time.Minute)

	release, ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(DefaultRedisKey))
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisKey))

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(DefaultRedisKey))

	releaseB, ok, err := b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}

func TestRedisLockExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	a := NewRedisLock(client, "scan", time.Second)
	b := NewRedisLock(client, "scan", time.Minute)

	releaseA, ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	releaseA()
	assert.True(t, mr.Exists("scan"), "stale holder must not delete the new lock")
}

func TestRedisLockExtendsWhileHeld(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	l := NewRedisLock(client, "scan", 300*time.Millisecond)

	release, ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Age the key past several renewal periods; the holder keeps it alive.
	for range 3 {
		mr.FastForward(250 * time.Millisecond)
		require.True(t, mr.Exists("scan"))
		require.Eventually(t, func() bool {
			return mr.TTL("scan") > 250*time.Millisecond
		}, 2*time.Second, 10*time.Millisecond)
	}

	release()
	assert.False(t, mr.Exists("scan"))

	mr.FastForward(time.Second)
	next, ok, err := NewRedisLock(client, "scan", time.Minute).TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "released lock is free for the next holder")
	next()
}

func TestRedisLockUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	_, ok, err := NewRedisLock(client, "", 0).TryAcquire(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	l, closer, err := New(Config{Kind: KindNone})
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, closer())

	l, _, err = New(Config{Kind: KindFile, Path: filepath.Join(t.TempDir(), "scan.lock")})
	require.NoError(t, err)
	assert.IsType(t, &FileLock{}, l)

	mr := miniredis.RunT(t)
	l, closer, err = New(Config{Kind: KindRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &RedisLock{}, l)
	assert.NoError(t, l.(*RedisLock).Ping(context.Background()))
	assert.NoError(t, closer())

	for _, bad := range []Config{{Kind: KindFile}, {Kind: KindRedis}, {Kind: "zookeeper"}} {
		_, _, err := New(bad)
		assert.Error(t, err, "%+v", bad)
	}
}
