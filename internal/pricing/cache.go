package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const keyPrefix = "alphapoints:price:"

// kv is the subset of the redis client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CacheOptions configures the redis price cache.
type CacheOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache wraps an Oracle and memoises quotes in redis for TTL.
type RedisCache struct {
	next   Oracle
	client kv
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache dials redis lazily; the client connects on first command.
func NewRedisCache(next Oracle, opts CacheOptions, logger zerolog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisCache(next, client, opts.TTL, logger)
}

func newRedisCache(next Oracle, client kv, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "price_cache").Logger(),
	}
}

// Prices serves cached quotes and asks the wrapped oracle for the rest.
// A redis outage degrades to a pass-through.
func (c *RedisCache) Prices(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	wanted := Unique(tokens)
	out := make(map[string]decimal.Decimal, len(wanted))
	var missing []string

	for _, token := range wanted {
		raw, err := c.client.Get(ctx, keyPrefix+token).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				c.logger.Warn().Err(err).Str("token", token).Msg("price cache read failed")
			}
			missing = append(missing, token)
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("token", token).Msg("discarding corrupt cached price")
			missing = append(missing, token)
			continue
		}
		out[token] = price
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.next.Prices(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("price cache miss: %w", err)
	}
	for token, price := range fresh {
		token = normalize(token)
		out[token] = price
		if err := c.client.Set(ctx, keyPrefix+token, price.String(), c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("token", token).Msg("price cache write failed")
		}
	}
	return out, nil
}

var _ Oracle = (*RedisCache)(nil)
