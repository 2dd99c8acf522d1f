package lock

import (
	"context"
	"errors"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializa a los escritores de una misma key (una medicación).
// Unlock es idempotente.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
