package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/redis"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	client, mr := newRedis(t)
	key := client.LockKey("cron")

	first, err := NewRedisLock(client, key, time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(client, key, time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, mr.TTL(key))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "second replica must not acquire a held lock")

	require.NoError(t, second.Release(ctx))
	require.True(t, mr.Exists(key), "a replica that never held the lock cannot release it")

	require.NoError(t, first.Release(ctx))
	require.False(t, mr.Exists(key))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockDoesNotReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	client, mr := newRedis(t)
	key := client.LockKey("cron")

	stale, err := NewRedisLock(client, key, time.Second)
	require.NoError(t, err)
	fresh, err := NewRedisLock(client, key, time.Minute)
	require.NoError(t, err)

	ok, err := stale.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = fresh.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists(key), "expired owner must not delete the new owner's lock")
}

func TestNewRedisLockValidates(t *testing.T) {
	client, _ := newRedis(t)
	if _, err := NewRedisLock(nil, "k", time.Second); err == nil {
		t.Fatalf("expected nil client error")
	}
	if _, err := NewRedisLock(client, "", time.Second); err == nil {
		t.Fatalf("expected empty key error")
	}
	lock, err := NewRedisLock(client, "k", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)
}
