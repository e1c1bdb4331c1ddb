package policy

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/db/dbtest"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

func seedCatalog(t *testing.T) (Resolver, models.Product, models.Variant) {
	t.Helper()
	client := dbtest.Open(t)
	product := models.Product{Title: "Poster", TracksInventory: true, AllowBackorder: true}
	require.NoError(t, client.DB().Create(&product).Error)
	variant := models.Variant{ProductID: product.ID, SKU: "POSTER-A2", Title: "A2", Price: decimal.RequireFromString("12.50")}
	require.NoError(t, client.DB().Create(&variant).Error)

	resolver, err := NewResolver(NewRepository(client.DB()))
	require.NoError(t, err)
	return resolver, product, variant
}

func TestResolveReadsProductFlags(t *testing.T) {
	resolver, product, _ := seedCatalog(t)

	got, err := resolver.Resolve(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, Policy{TracksInventory: true, AllowBackorder: true}, got)
	assert.False(t, got.BypassesLedger())
}

func TestResolveUnknownProduct(t *testing.T) {
	resolver, _, _ := seedCatalog(t)

	_, err := resolver.Resolve(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = resolver.Resolve(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveVariantJoinsProduct(t *testing.T) {
	resolver, product, variant := seedCatalog(t)

	got, err := resolver.ResolveVariant(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.Equal(t, variant.ID, got.VariantID)
	assert.Equal(t, product.ID, got.ProductID)
	assert.True(t, got.Policy.AllowBackorder)

	_, err = resolver.ResolveVariant(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveVariantsOmitsUnknownIDs(t *testing.T) {
	resolver, _, variant := seedCatalog(t)

	got, err := resolver.ResolveVariants(context.Background(), []uuid.UUID{variant.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, variant.ID)
}

type memoryCache struct {
	values map[string]string
	getErr error
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.sets++
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	return nil
}

func (m *memoryCache) CacheKey(parts ...string) string {
	key := "sf:cache"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

type countingResolver struct {
	Resolver
	variantCalls int
	productCalls int
}

func (c *countingResolver) Resolve(ctx context.Context, id uuid.UUID) (Policy, error) {
	c.productCalls++
	return c.Resolver.Resolve(ctx, id)
}

func (c *countingResolver) ResolveVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]VariantPolicy, error) {
	c.variantCalls++
	return c.Resolver.ResolveVariants(ctx, ids)
}

func newCached(t *testing.T, next Resolver, cache cacheStore) *CachedResolver {
	t.Helper()
	cached, err := NewCachedResolver(CachedResolverParams{
		Next:   next,
		Cache:  cache,
		Logger: logger.New(logger.Options{ServiceName: "policy-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return cached
}

func TestCachedResolverServesSecondLookupFromCache(t *testing.T) {
	base, product, variant := seedCatalog(t)
	counting := &countingResolver{Resolver: base}
	cache := newMemoryCache()
	cached := newCached(t, counting, cache)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := cached.ResolveVariants(ctx, []uuid.UUID{variant.ID})
		require.NoError(t, err)
		assert.Equal(t, product.ID, got[variant.ID].ProductID)
	}
	assert.Equal(t, 1, counting.variantCalls)

	for i := 0; i < 2; i++ {
		_, err := cached.Resolve(ctx, product.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counting.productCalls)
	assert.Contains(t, cache.values, "sf:cache:policy:product:"+product.ID.String())
}

func TestCachedResolverFallsBackWhenCacheFails(t *testing.T) {
	base, _, variant := seedCatalog(t)
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	cached := newCached(t, base, cache)

	got, err := cached.ResolveVariant(context.Background(), variant.ID)
	require.NoError(t, err)
	assert.Equal(t, variant.ID, got.VariantID)
}

func TestCachedResolverDoesNotCacheMisses(t *testing.T) {
	base, _, _ := seedCatalog(t)
	cache := newMemoryCache()
	cached := newCached(t, base, cache)

	_, err := cached.ResolveVariant(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Zero(t, cache.sets)
}

func TestNewCachedResolverValidation(t *testing.T) {
	_, err := NewCachedResolver(CachedResolverParams{})
	assert.Error(t, err)
}
