package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	domain "github.com/R3E-Network/storefront/internal/app/domain/catalog"
)

// ProductCache is a read-through cache for single products.
type ProductCache interface {
	Get(ctx context.Context, id string) (domain.Product, bool, error)
	Set(ctx context.Context, p domain.Product) error
	Invalidate(ctx context.Context, id string) error
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (domain.Product, bool, error) {
	return domain.Product{}, false, nil
}

func (NoopCache) Set(context.Context, domain.Product) error { return nil }

func (NoopCache) Invalidate(context.Context, string) error { return nil }

// RedisCache stores products as JSON under "storefront:product:<id>".
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ ProductCache = (*RedisCache)(nil)

// NewRedisCache wraps client. A non-positive ttl defaults to five minutes.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "storefront:product:"}
}

func (c *RedisCache) key(id string) string { return c.prefix + id }

func (c *RedisCache) Get(ctx context.Context, id string) (domain.Product, bool, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("redis get product %s: %w", id, err)
	}
	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Product{}, false, fmt.Errorf("decode cached product %s: %w", id, err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p domain.Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product %s: %w", p.ID, err)
	}
	if err := c.client.Set(ctx, c.key(p.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set product %s: %w", p.ID, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del product %s: %w", id, err)
	}
	return nil
}
