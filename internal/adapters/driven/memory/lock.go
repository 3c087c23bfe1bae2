package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// Lock is a process-local DistributedLock for single-instance deployments.
// TTLs are honoured so a crashed run cannot hold a name forever.
type Lock struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewLock creates an empty in-process lock.
func NewLock() *Lock {
	return &Lock{locks: make(map[string]time.Time), now: time.Now}
}

func (l *Lock) held(name string) bool {
	expiry, ok := l.locks[name]
	return ok && l.now().Before(expiry)
}

// Acquire takes name for ttl unless it is already held.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held(name) {
		return false, nil
	}
	l.locks[name] = l.now().Add(ttl)
	return true, nil
}

// Release drops name. Safe to call when not held.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, name)
	return nil
}

// Extend pushes the expiry of a held lock.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held(name) {
		return fmt.Errorf("lock %s not held", name)
	}
	l.locks[name] = l.now().Add(ttl)
	return nil
}

// Ping always succeeds.
func (l *Lock) Ping(ctx context.Context) error {
	return nil
}
