package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ashureev/estatepost/internal/lock"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, *lock.RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, lock.NewRedisLocker(client, "estatepost:")
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "client-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("estatepost:lock:client-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("estatepost:lock:client-1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	_, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	mr, locker := newLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock2, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, unlock(ctx), lock.ErrNotHeld)
	assert.True(t, mr.Exists("estatepost:lock:k"), "new holder keeps the key")
	require.NoError(t, unlock2(ctx))
}
