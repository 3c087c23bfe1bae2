package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock using database session locks:
// pg_try_advisory_lock on PostgreSQL and GET_LOCK on MySQL.
//
// IMPORTANT LIMITATIONS:
// - Session locks are connection-scoped, not TTL-based
// - Each held lock pins one pooled connection until Release
// - If the connection is lost, the lock is automatically released
// - TTL parameter is ignored (locks don't expire automatically)
//
// Redis locks are preferred when REDIS_URL is configured.
type AdvisoryLock struct {
	db *DB

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewAdvisoryLock creates a new advisory lock adapter.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db, conns: make(map[string]*sql.Conn)}
}

// hashLockName converts a string lock name to a 64-bit integer for PostgreSQL advisory locks.
// Uses FNV-1a hash for consistent, well-distributed values.
func hashLockName(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("es-sync:lock:" + name))
	return int64(h.Sum64())
}

func (l *AdvisoryLock) acquireQuery(name string) (string, any) {
	if l.db.driver == DriverMySQL {
		return "SELECT GET_LOCK(?, 0)", "es-sync:lock:" + name
	}
	return "SELECT pg_try_advisory_lock($1)", hashLockName(name)
}

func (l *AdvisoryLock) releaseQuery(name string) (string, any) {
	if l.db.driver == DriverMySQL {
		return "SELECT RELEASE_LOCK(?)", "es-sync:lock:" + name
	}
	return "SELECT pg_advisory_unlock($1)", hashLockName(name)
}

// Acquire attempts to acquire a named lock without blocking.
//
// Note: The TTL parameter is ignored. The lock is held until explicitly
// released or the connection closes.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.conns[name]; held {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("lock connection: %w", err)
	}

	query, arg := l.acquireQuery(name)
	var acquired sql.NullBool
	if err := conn.QueryRowContext(ctx, query, arg).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired.Valid || !acquired.Bool {
		conn.Close()
		return false, nil
	}

	l.conns[name] = conn
	return true, nil
}

// Release releases a named lock. Safe to call even if the lock is not held.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	conn, held := l.conns[name]
	delete(l.conns, name)
	l.mu.Unlock()

	if !held {
		return nil
	}
	defer conn.Close()

	query, arg := l.releaseQuery(name)
	var released sql.NullBool
	return conn.QueryRowContext(ctx, query, arg).Scan(&released)
}

// Extend verifies the lock is still held by this process. Session locks have
// no TTL to refresh.
func (l *AdvisoryLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	conn, held := l.conns[name]
	l.mu.Unlock()

	if !held {
		return fmt.Errorf("lock %s not held", name)
	}
	return conn.PingContext(ctx)
}

// Ping checks if the database backend is healthy.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
