// Package lock serializes lifecycle transitions per service.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrNotAcquired is returned when the lock is still held by someone else after the wait elapsed.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func(ctx context.Context) error

type Locker interface {
	// Acquire blocks until the lock for key is held, the configured wait elapses or ctx is done.
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// LocalLocker is an in-process Locker for single-replica deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]chan struct{}
	wait  time.Duration
	clock clock.Clock
}

func NewLocalLocker(wait time.Duration, clk clock.Clock) *LocalLocker {
	if clk == nil {
		clk = clock.WallClock
	}
	return &LocalLocker{
		held:  make(map[string]chan struct{}),
		wait:  wait,
		clock: clk,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	var timeout <-chan time.Time
	if l.wait > 0 {
		timeout = l.clock.After(l.wait)
	}

	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			released = make(chan struct{})
			l.held[key] = released
			l.mu.Unlock()
			return l.unlocker(key, released), nil
		}
		l.mu.Unlock()

		if l.wait <= 0 {
			return nil, ErrNotAcquired
		}

		select {
		case <-released:
		case <-timeout:
			return nil, ErrNotAcquired
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *LocalLocker) unlocker(key string, released chan struct{}) Unlock {
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			close(released)
		})
		return nil
	}
}
