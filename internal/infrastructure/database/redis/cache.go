package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/intelligence/mechanism"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// Cache is a JSON value cache with namespaced keys.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
	Ping(ctx context.Context) error
}

type redisCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	jitter     float64
}

// CacheOption configures a Cache.
type CacheOption func(*redisCache)

// WithPrefix namespaces every key.
func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

// WithDefaultTTL applies when Set is called with ttl 0.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// WithTTLJitter spreads expirations by ±fraction of the TTL.  0 disables it.
func WithTTLJitter(fraction float64) CacheOption {
	return func(c *redisCache) { c.jitter = fraction }
}

// NewRedisCache returns a Cache over client.
func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:     client,
		logger:     log,
		prefix:     "chempredict:",
		defaultTTL: 24 * time.Hour,
		jitter:     0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 || c.jitter == 0 {
		return ttl
	}
	j := float64(ttl) * c.jitter * (rand.Float64()*2 - 1)
	return ttl + time.Duration(j)
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.jitterTTL(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

func (c *redisCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	match := c.fullKey(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache")
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Prediction cache
// ─────────────────────────────────────────────────────────────────────────────

const predictionNamespace = "prediction:"

// PredictionCache memoises predictions per backend and input.  Concurrent
// misses for the same key share one predictor call.  Cache failures are
// logged and fall through to the predictor.
type PredictionCache struct {
	cache  Cache
	ttl    time.Duration
	logger logging.Logger
	group  singleflight.Group
}

// NewPredictionCache returns a PredictionCache storing entries for ttl.
func NewPredictionCache(cache Cache, ttl time.Duration, log logging.Logger) *PredictionCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &PredictionCache{cache: cache, ttl: ttl, logger: log}
}

// PredictionKey derives the cache key for in under backend.
func PredictionKey(backend string, in mechanism.Input) string {
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return predictionNamespace + backend + ":" + hex.EncodeToString(sum[:16])
}

// GetOrPredict returns the cached prediction for in or computes and stores
// it.  hit reports whether the value came from the cache.
func (p *PredictionCache) GetOrPredict(
	ctx context.Context,
	backend string,
	in mechanism.Input,
	predict func(ctx context.Context) (*mechanism.Prediction, error),
) (pred *mechanism.Prediction, hit bool, err error) {
	key := PredictionKey(backend, in)

	var cached mechanism.Prediction
	switch err := p.cache.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, true, nil
	case err != ErrCacheMiss:
		p.logger.Warn("prediction cache read failed", logging.String("key", key), logging.Err(err))
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		res, err := predict(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Set(ctx, key, res, p.ttl); err != nil {
			p.logger.Warn("prediction cache write failed", logging.String("key", key), logging.Err(err))
		}
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*mechanism.Prediction), false, nil
}

// Invalidate drops every cached prediction.
func (p *PredictionCache) Invalidate(ctx context.Context) (int64, error) {
	n, err := p.cache.DeleteByPrefix(ctx, predictionNamespace)
	if err != nil {
		p.logger.Warn("prediction cache invalidation failed", logging.Err(err))
		return n, err
	}
	p.logger.Info("prediction cache invalidated", logging.Int64("keys", n))
	return n, nil
}
