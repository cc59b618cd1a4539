package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker, _ := newRedisLocker(t, time.Minute)

	first, err := locker.Acquire(ctx, "job:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "job:1")
	require.ErrorIs(t, err, ErrHeld)

	other, err := locker.Acquire(ctx, "job:2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))

	again, err := locker.Acquire(ctx, "job:1")
	require.NoError(t, err)
	require.Equal(t, "job:1", again.Key())
}

func TestRedisLeaseExpires(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, time.Second)

	stale, err := locker.Acquire(ctx, "job:7")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "job:7")
	require.NoError(t, err)

	// the expired holder must not delete the new holder's key
	require.ErrorIs(t, stale.Release(ctx), ErrNotHeld)
	_, err = locker.Acquire(ctx, "job:7")
	require.ErrorIs(t, err, ErrHeld)

	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLeaseRefresh(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, time.Second)

	l, err := locker.Acquire(ctx, "job:3")
	require.NoError(t, err)
	require.Equal(t, time.Second, l.TTL())

	mr.FastForward(800 * time.Millisecond)
	require.NoError(t, l.Refresh(ctx))
	mr.FastForward(800 * time.Millisecond)

	_, err = locker.Acquire(ctx, "job:3")
	require.ErrorIs(t, err, ErrHeld)

	mr.FastForward(time.Second)
	require.ErrorIs(t, l.Refresh(ctx), ErrNotHeld)
}

func TestKeepCancelsWhenLeaseIsLost(t *testing.T) {
	locker, mr := newRedisLocker(t, 150*time.Millisecond)

	l, err := locker.Acquire(context.Background(), "job:4")
	require.NoError(t, err)

	ctx, stop := Keep(context.Background(), l)
	defer stop()
	require.NoError(t, ctx.Err())

	mr.Del(keyPrefix + "job:4")

	require.Eventually(t, func() bool { return ctx.Err() != nil }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, context.Cause(ctx), ErrNotHeld)
}

func TestKeepStops(t *testing.T) {
	l, err := NewLocalLocker().Acquire(context.Background(), "job:5")
	require.NoError(t, err)

	ctx, stop := Keep(context.Background(), l)
	require.NoError(t, l.Refresh(ctx))
	stop()
	stop()
	require.Error(t, ctx.Err())

	require.NoError(t, l.Release(context.Background()))
	require.ErrorIs(t, l.Refresh(context.Background()), ErrNotHeld)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	l, err := locker.Acquire(ctx, "job:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "job:1")
	require.ErrorIs(t, err, ErrHeld)

	require.NoError(t, l.Release(ctx))
	require.ErrorIs(t, l.Release(ctx), ErrNotHeld)

	_, err = locker.Acquire(ctx, "job:1")
	require.NoError(t, err)
}
