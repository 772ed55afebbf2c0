package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockIsExclusiveUntilReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	first, err := AcquireLock(ctx, client, "billing:tick", time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(ctx, client, "billing:tick", time.Minute)
	require.True(t, errors.Is(err, ErrLockHeld))

	require.NoError(t, first.Release(ctx))

	second, err := AcquireLock(ctx, client, "billing:tick", time.Minute)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	lock, err := AcquireLock(ctx, client, "billing:tick", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := AcquireLock(ctx, client, "billing:tick", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	require.True(t, mr.Exists("billing:tick"))
	require.NoError(t, other.Release(ctx))
	require.False(t, mr.Exists("billing:tick"))
}
