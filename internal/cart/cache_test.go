package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client, 10*time.Minute), mr
}

func sampleView() *domain.CartView {
	line := domain.CartLine{
		ID:           "line-1",
		ProductID:    "product-1",
		ProductName:  "Ibuprofeno",
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("2500"),
		UnitDiscount: decimal.RequireFromString("100"),
	}
	line.RecomputeLineTotal()

	c := domain.Cart{ID: "cart-1", Status: domain.CartStatusOpen, Lines: []domain.CartLine{line}}
	view := c.View()
	return &view
}

func TestRedisCache_SetThenGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "customer-1", sampleView(), 0))

	got, err := cache.Get(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", got.ID)
	require.Len(t, got.Lines, 1)
	assert.True(t, decimal.RequireFromString("4800").Equal(got.Total))
	assert.True(t, decimal.RequireFromString("4800").Equal(got.Lines[0].LineTotal))
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisCache_TTLIsJittered(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "customer-1", sampleView(), 0))

	ttl := mr.TTL(cacheKey("customer-1"))
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)
}

func TestRedisCache_ExpiresAfterTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "customer-1", sampleView(), 0))
	mr.FastForward(20 * time.Minute)

	_, err := cache.Get(ctx, "customer-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "customer-1", sampleView(), 0))
	require.NoError(t, cache.Delete(ctx, "customer-1"))

	assert.False(t, mr.Exists(cacheKey("customer-1")))
	require.NoError(t, cache.Delete(ctx, "customer-1"))

	version, err := cache.Version(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Greater(t, mr.TTL(versionKey("customer-1")), 10*time.Minute)
}

// A reader loads the cart, a mutation commits and invalidates, then the reader tries
// to cache what it loaded. The old view must not be written back.
func TestRedisCache_SetAfterInvalidationIsDropped(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	version, err := cache.Version(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	require.NoError(t, cache.Delete(ctx, "customer-1"))

	err = cache.Set(ctx, "customer-1", sampleView(), version)
	require.ErrorIs(t, err, ErrStaleVersion)
	assert.False(t, mr.Exists(cacheKey("customer-1")))

	_, err = cache.Get(ctx, "customer-1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	current, err := cache.Version(ctx, "customer-1")
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, "customer-1", sampleView(), current))

	got, err := cache.Get(ctx, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, "cart-1", got.ID)
}

func TestRedisCache_SetServerDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	err := cache.Set(context.Background(), "customer-1", sampleView(), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleVersion)
}

func TestRedisCache_InvalidPayload(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("customer-1"), "{not json"))

	_, err := cache.Get(context.Background(), "customer-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ServerDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "customer-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNoopCache(t *testing.T) {
	var cache Cache = NoopCache{}
	ctx := context.Background()

	version, err := cache.Version(ctx, "customer-1")
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, cache.Set(ctx, "customer-1", sampleView(), 0))
	_, err = cache.Get(ctx, "customer-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, cache.Delete(ctx, "customer-1"))
}
