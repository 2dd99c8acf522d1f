package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-reminder/internal/ports/lock"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, Options{Retry: 5 * time.Millisecond, Wait: 100 * time.Millisecond}), mr
}

func TestLock_AcquireAndRelease(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "medication:m1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("medrem:lock:medication:m1"))

	unlock()
	assert.False(t, mr.Exists("medrem:lock:medication:m1"))

	// idempotente
	unlock()
}

func TestLock_SecondWriterTimesOut(t *testing.T) {
	l, _ := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), "medication:m1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "medication:m1")
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestLock_ReleaseDoesNotStealForeignLock(t *testing.T) {
	l, mr := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), "medication:m1")
	require.NoError(t, err)

	// otro proceso tomó la key después de que expiró la nuestra
	mr.FastForward(DefaultTTL + time.Second)
	require.NoError(t, mr.Set("medrem:lock:medication:m1", "other-token"))

	unlock()

	v, err := mr.Get("medrem:lock:medication:m1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", v)
}

func TestLock_WaitsForRelease(t *testing.T) {
	l, _ := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), "medication:m1")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlock2, err := l.Lock(ctx, "medication:m1")
	require.NoError(t, err)
	unlock2()
}
