package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medication-reminder/internal/ports/lock"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := NewLocker()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "medication:m1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.byKey)
}

func TestLocker_ContextTimeout(t *testing.T) {
	l := NewLocker()

	unlock, err := l.Lock(context.Background(), "medication:m1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "medication:m1")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocker()

	u1, err := l.Lock(context.Background(), "medication:m1")
	require.NoError(t, err)
	defer u1()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	u2, err := l.Lock(ctx, "medication:m2")
	require.NoError(t, err)
	u2()
}
