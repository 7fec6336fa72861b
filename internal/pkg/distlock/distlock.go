package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock fences the dispatch poll loop so only one orchestrator instance
// scans for due campaigns at a time. Instances are single-goroutine;
// concurrent use requires separate lock instances.
type DistLock interface {
	// Acquire tries to take the lock. Returns true if this instance holds it.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if we still own it.
	Release(ctx context.Context) error
}

// NewLock picks the best available backend: Redis when a client is wired
// (preferred for cross-host fencing), otherwise a Postgres advisory lock on
// the campaign store itself.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements DistLock on pg_try_advisory_lock /
// pg_advisory_unlock. Advisory locks are session-scoped: a dropped
// connection releases the lock, which stands in for the Redis TTL.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock derives a deterministic lock ID from key so every
// instance contends on the same advisory lock.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire is non-blocking: pg_try_advisory_lock returns immediately.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
