package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExcludesConcurrentHolders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()
	key := RevaluationLockKey(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "ledger:forex:2025-03-31:lock", key)

	release, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.True(t, errors.Is(err, ErrLockHeld))

	release()
	release2, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release2()
}

func TestNilLockerGrants(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), RecurringLockKey(), time.Second)
	require.NoError(t, err)
	release()
}
