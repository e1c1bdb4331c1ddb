package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront/pkg/logger"
)

const defaultCacheTTL = time.Minute

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// CachedResolverParams wires a read-through cache in front of another resolver.
type CachedResolverParams struct {
	Next   Resolver
	Cache  cacheStore
	Logger *logger.Logger
	TTL    time.Duration
}

// CachedResolver serves policies from Redis and falls back to the wrapped resolver.
// Cache failures never fail a lookup.
type CachedResolver struct {
	next  Resolver
	cache cacheStore
	logg  *logger.Logger
	ttl   time.Duration
}

// NewCachedResolver builds a CachedResolver.
func NewCachedResolver(params CachedResolverParams) (*CachedResolver, error) {
	if params.Next == nil {
		return nil, fmt.Errorf("next resolver required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedResolver{
		next:  params.Next,
		cache: params.Cache,
		logg:  params.Logger,
		ttl:   ttl,
	}, nil
}

func (c *CachedResolver) Resolve(ctx context.Context, productID uuid.UUID) (Policy, error) {
	key := c.cache.CacheKey("policy", "product", productID.String())
	var cached Policy
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	p, err := c.next.Resolve(ctx, productID)
	if err != nil {
		return Policy{}, err
	}
	c.store(ctx, key, p)
	return p, nil
}

func (c *CachedResolver) ResolveVariant(ctx context.Context, variantID uuid.UUID) (VariantPolicy, error) {
	key := c.variantKey(variantID)
	var cached VariantPolicy
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	vp, err := c.next.ResolveVariant(ctx, variantID)
	if err != nil {
		return VariantPolicy{}, err
	}
	c.store(ctx, key, vp)
	return vp, nil
}

func (c *CachedResolver) ResolveVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]VariantPolicy, error) {
	out := make(map[uuid.UUID]VariantPolicy, len(variantIDs))
	var misses []uuid.UUID
	for _, id := range variantIDs {
		if _, done := out[id]; done {
			continue
		}
		var cached VariantPolicy
		if c.load(ctx, c.variantKey(id), &cached) {
			out[id] = cached
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.next.ResolveVariants(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, vp := range fetched {
		out[id] = vp
		c.store(ctx, c.variantKey(id), vp)
	}
	return out, nil
}

func (c *CachedResolver) variantKey(id uuid.UUID) string {
	return c.cache.CacheKey("policy", "variant", id.String())
}

func (c *CachedResolver) load(ctx context.Context, key string, dest any) bool {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logg.Warn(c.logg.WithField(ctx, "cache_key", key), "policy cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "cache_key", key), "policy cache entry unreadable")
		return false
	}
	return true
}

func (c *CachedResolver) store(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "cache_key", key), "policy cache write failed")
	}
}
