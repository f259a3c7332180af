package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// minLockTTL bounds how long a crashed worker can block the next cycle.
const minLockTTL = 5 * time.Minute

// Lock coordinates exclusive cron runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a single-owner lease on one redis key.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock builds a lease that expires after ttl. A zero ttl falls back
// to minLockTTL.
func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// LeaseFor sizes the lease to the cycle so an abandoned lock frees before the next tick.
func LeaseFor(interval time.Duration) time.Duration {
	lease := interval * 3 / 4
	if lease < minLockTTL {
		return minLockTTL
	}
	return lease
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lease: %w", err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release drops the lease only while this instance still owns it; an
// expired lease picked up by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.DelIfEquals(ctx, l.key, owner); err != nil {
		return fmt.Errorf("drop cron lease: %w", err)
	}
	return nil
}
