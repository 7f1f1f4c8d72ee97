package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joiedevivre/jasmine/internal/repositories/repotest"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/redis"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(redis.Config{Addr: repotest.StartRedis(t)}, repotest.Logger())
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker_Integration(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "lock:", time.Minute)

	t.Run("held lock rejects a second holder", func(t *testing.T) {
		var inner error
		err := locker.WithLock(ctx, locking.CascadeKey("biz-1"), func(ctx context.Context) error {
			inner = locker.WithLock(ctx, locking.CascadeKey("biz-1"), func(context.Context) error {
				t.Fatal("second holder must not run")
				return nil
			})
			return nil
		})

		require.NoError(t, err)
		assert.ErrorIs(t, inner, locking.ErrLocked)
	})

	t.Run("released after fn returns", func(t *testing.T) {
		boom := errors.New("step failed")
		err := locker.WithLock(ctx, "duplicate-scan", func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		_, err = client.Get(ctx, "lock:duplicate-scan")
		assert.ErrorIs(t, err, redis.ErrNotFound)

		ran := false
		require.NoError(t, locker.WithLock(ctx, "duplicate-scan", func(context.Context) error {
			ran = true
			return nil
		}))
		assert.True(t, ran)
	})

	t.Run("lock carries a TTL", func(t *testing.T) {
		require.NoError(t, locker.WithLock(ctx, "ttl", func(ctx context.Context) error {
			ttl, err := client.TTL(ctx, "lock:ttl")
			require.NoError(t, err)
			assert.Greater(t, ttl, time.Duration(0))
			assert.LessOrEqual(t, ttl, time.Minute)
			return nil
		}))
	})

	t.Run("release of a foreign token is refused", func(t *testing.T) {
		lock, err := locker.Acquire(ctx, "foreign")
		require.NoError(t, err)
		require.NoError(t, client.Set(ctx, "lock:foreign", "someone-else", time.Minute))

		assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)
		v, err := client.Get(ctx, "lock:foreign")
		require.NoError(t, err)
		assert.Equal(t, "someone-else", v)
	})
}
