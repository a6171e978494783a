package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/testhelpers"
)

func TestLocal_ExclusivePerKey(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx, "sheet-a")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "sheet-a")
	assert.ErrorIs(t, err, apperrors.ErrLocked)

	other, err := l.Acquire(ctx, "sheet-b")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "sheet-a")
	require.NoError(t, err)
	again()
}

func TestLocal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().Acquire(ctx, "sheet-a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRedisClient_EmptyHost(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestRedis_AcquireRelease(t *testing.T) {
	tr := testhelpers.GetTestRedis(t)
	client := redis.NewClient(&redis.Options{Addr: tr.Addr})
	defer client.Close()

	ctx := context.Background()
	a := NewRedis(client, time.Minute, zap.NewNop())
	b := NewRedis(client, time.Minute, zap.NewNop())

	release, err := a.Acquire(ctx, "sheet-redis")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "sheet-redis")
	assert.ErrorIs(t, err, apperrors.ErrLocked)

	release()

	releaseB, err := b.Acquire(ctx, "sheet-redis")
	require.NoError(t, err)
	releaseB()
}

func TestRedis_ReleaseLeavesForeignLock(t *testing.T) {
	tr := testhelpers.GetTestRedis(t)
	client := redis.NewClient(&redis.Options{Addr: tr.Addr})
	defer client.Close()

	ctx := context.Background()
	l := NewRedis(client, time.Minute, zap.NewNop())

	release, err := l.Acquire(ctx, "sheet-expired")
	require.NoError(t, err)

	// Simulate expiry followed by another run taking the lock.
	require.NoError(t, client.Set(ctx, "sheetsync:lock:sheet-expired", "someone-else", time.Minute).Err())

	release()

	val, err := client.Get(ctx, "sheetsync:lock:sheet-expired").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}
