package memory

import (
	"context"
	"fmt"
	"sync"

	"medication-reminder/internal/ports/lock"
)

// Locker es un mutex por key para un solo proceso (modo dev / tests).
type Locker struct {
	mu    sync.Mutex
	byKey map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{byKey: make(map[string]*entry)}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(key)
		return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.releaseEntry(key)
		})
	}, nil
}

func (l *Locker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.byKey[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.byKey, key)
	}
}
