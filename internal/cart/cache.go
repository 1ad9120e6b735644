package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleVersion means the cart was invalidated after the view was read.
	ErrStaleVersion = errors.New("cart changed since it was read")
)

// versionTTL outlives any cached view so a bumped version cannot expire before the
// view it guards.
const versionTTL = 24 * time.Hour

// Cache stores the read model of a customer's OPEN cart keyed by customer id.
// Every Delete bumps a per-customer version. Readers take the version before loading
// the cart and Set writes only while it is unchanged, so a view read before a
// mutation never lands after that mutation's invalidation.
type Cache interface {
	Get(ctx context.Context, customerID string) (*domain.CartView, error)
	Version(ctx context.Context, customerID string) (int64, error)
	Set(ctx context.Context, customerID string, view *domain.CartView, version int64) error
	Delete(ctx context.Context, customerID string) error
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

func (r *RedisCache) Get(ctx context.Context, customerID string) (*domain.CartView, error) {
	data, err := r.client.Get(ctx, cacheKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var view domain.CartView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &view, nil
}

func (r *RedisCache) Version(ctx context.Context, customerID string) (int64, error) {
	return readVersion(ctx, r.client, customerID)
}

// Set writes the view only while the version still equals version, and returns
// ErrStaleVersion otherwise. Expirations get up to five minutes of jitter so carts
// cached together do not all expire together.
func (r *RedisCache) Set(ctx context.Context, customerID string, view *domain.CartView, version int64) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStaleVersion
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(customerID), data, ttl)
			return nil
		})
		return err
	}, versionKey(customerID))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleVersion), errors.Is(err, redis.TxFailedErr):
		return ErrStaleVersion
	default:
		return fmt.Errorf("redis set: %w", err)
	}
}

// Delete drops the view and bumps the version in one transaction.
func (r *RedisCache) Delete(ctx context.Context, customerID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(customerID))
		pipe.Expire(ctx, versionKey(customerID), versionTTL)
		pipe.Del(ctx, cacheKey(customerID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, c getter, customerID string) (int64, error) {
	v, err := c.Get(ctx, versionKey(customerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

func cacheKey(customerID string) string {
	return "cart:" + customerID
}

func versionKey(customerID string) string {
	return "cart:ver:" + customerID
}

// NoopCache always misses. Used when no Redis address is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.CartView, error) { return nil, ErrCacheMiss }

func (NoopCache) Version(context.Context, string) (int64, error) { return 0, nil }

func (NoopCache) Set(context.Context, string, *domain.CartView, int64) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }
