package mobilemoneywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookKey(provider, id string) string
}

// IdempotencyGuard remembers processed deliveries for a TTL window.
type IdempotencyGuard struct {
	store    dedupStore
	ttl      time.Duration
	provider string
}

func NewIdempotencyGuard(store dedupStore, ttl time.Duration, provider string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &IdempotencyGuard{
		store:    store,
		ttl:      ttl,
		provider: provider,
	}, nil
}

// CheckAndMark marks key as seen and reports whether it had been seen before.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("dedup key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(g.provider, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set dedup key: %w", err)
	}
	return !set, nil
}

// Release forgets key so a redelivery is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("dedup key is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(g.provider, key))
}
