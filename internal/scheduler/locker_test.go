package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLockerIsExclusive(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stale token never releases someone else's lock.
	require.NoError(t, locker.Release(ctx, "job", "not-the-owner"))
	assert.True(t, mr.Exists("job"))

	require.NoError(t, locker.Release(ctx, "job", token))
	assert.False(t, mr.Exists("job"))

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = locker.TryLock(ctx, "job", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerValidatesInput(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	_, _, err := locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)
	_, _, err = locker.TryLock(ctx, "job", 0)
	assert.Error(t, err)

	var missing *RedisLocker
	_, _, err = missing.TryLock(ctx, "job", time.Minute)
	assert.Error(t, err)
	assert.NoError(t, missing.Release(ctx, "job", "token"))
}
