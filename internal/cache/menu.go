// Package cache holds display-only menu snapshots.
//
// The cache serves GET /menu and nothing else. Stock reservation always reads
// and writes the store directly, so a stale snapshot can make an item look
// available for up to the TTL but can never cause an oversell.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Key names. The admin view includes inactive items.
const (
	KeyMenuPublic = "canteen:menu:active"
	KeyMenuAdmin  = "canteen:menu:all"
)

// DefaultTTL bounds how stale a snapshot can get if an invalidation is lost.
const DefaultTTL = 30 * time.Second

// MenuCache stores rendered menu listings.
type MenuCache interface {
	// GetMenu returns the cached listing and whether it was present.
	GetMenu(ctx context.Context, includeInactive bool) ([]domain.MenuItem, bool, error)
	SetMenu(ctx context.Context, includeInactive bool, items []domain.MenuItem) error
	InvalidateMenu(ctx context.Context) error
}

// Redis is a MenuCache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client. ttl <= 0 uses DefaultTTL.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// GetMenu implements MenuCache.
func (r *Redis) GetMenu(ctx context.Context, includeInactive bool) ([]domain.MenuItem, bool, error) {
	data, err := r.client.Get(ctx, menuKey(includeInactive)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get menu snapshot: %w", err)
	}

	var items []domain.MenuItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("decode menu snapshot: %w", err)
	}
	return items, true, nil
}

// SetMenu implements MenuCache.
func (r *Redis) SetMenu(ctx context.Context, includeInactive bool, items []domain.MenuItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode menu snapshot: %w", err)
	}
	if err := r.client.Set(ctx, menuKey(includeInactive), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set menu snapshot: %w", err)
	}
	return nil
}

// InvalidateMenu implements MenuCache.
func (r *Redis) InvalidateMenu(ctx context.Context) error {
	if err := r.client.Del(ctx, KeyMenuPublic, KeyMenuAdmin).Err(); err != nil {
		return fmt.Errorf("invalidate menu snapshot: %w", err)
	}
	return nil
}

func menuKey(includeInactive bool) string {
	if includeInactive {
		return KeyMenuAdmin
	}
	return KeyMenuPublic
}

// Noop is a MenuCache that never holds anything. Used when no Redis address
// is configured.
type Noop struct{}

func (Noop) GetMenu(context.Context, bool) ([]domain.MenuItem, bool, error) { return nil, false, nil }
func (Noop) SetMenu(context.Context, bool, []domain.MenuItem) error        { return nil }
func (Noop) InvalidateMenu(context.Context) error                          { return nil }
