package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docbulk/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the byte cache used in front of document reads
type Cache interface {
	// Get retrieves a value, ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// GetMany retrieves the values present for keys. Missing keys are left out.
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores a value with an optional TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys
	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error

	Close() error
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = errors.New("cache miss")

// RedisCache implements Cache on a single Redis instance
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Error().Err(err).Str("address", cfg.Address).Msg("Failed to connect to Redis")
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}

	log.Info().
		Str("address", cfg.Address).
		Str("prefix", cfg.Prefix).
		Int("db", cfg.DB).
		Msg("Redis cache initialized successfully")

	return &RedisCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (c *RedisCache) formatKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get retrieves a value from the cache
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	formattedKey := c.formatKey(key)

	start := time.Now()
	result, err := c.client.Get(ctx, formattedKey).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		log.Debug().
			Str("key", formattedKey).
			Dur("duration", duration).
			Msg("Cache miss")
		return nil, ErrCacheMiss
	} else if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Dur("duration", duration).
			Msg("Error getting value from Redis")
		return nil, err
	}

	log.Debug().
		Str("key", formattedKey).
		Int("size", len(result)).
		Dur("duration", duration).
		Msg("Cache hit")

	return result, nil
}

// GetMany fetches keys with a single MGET
func (c *RedisCache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = c.formatKey(key)
	}

	start := time.Now()
	values, err := c.client.MGet(ctx, formatted...).Result()
	if err != nil {
		log.Error().
			Err(err).
			Int("keys", len(keys)).
			Dur("duration", time.Since(start)).
			Msg("Error getting values from Redis")
		return nil, err
	}

	for i, value := range values {
		if s, ok := value.(string); ok {
			found[keys[i]] = []byte(s)
		}
	}

	log.Debug().
		Int("keys", len(keys)).
		Int("hits", len(found)).
		Dur("duration", time.Since(start)).
		Msg("Cache multi-get")

	return found, nil
}

// Set stores a value in the cache with an optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	formattedKey := c.formatKey(key)

	start := time.Now()
	err := c.client.Set(ctx, formattedKey, value, ttl).Err()
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Int("size", len(value)).
			Dur("ttl", ttl).
			Dur("duration", duration).
			Msg("Error setting value in Redis")
		return err
	}

	log.Debug().
		Str("key", formattedKey).
		Int("size", len(value)).
		Dur("ttl", ttl).
		Dur("duration", duration).
		Msg("Successfully cached value")

	return nil
}

// Delete removes keys from the cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	formatted := make([]string, len(keys))
	for i, key := range keys {
		formatted[i] = c.formatKey(key)
	}

	start := time.Now()
	err := c.client.Del(ctx, formatted...).Err()
	duration := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Int("keys", len(keys)).
			Dur("duration", duration).
			Msg("Error deleting keys from Redis")
		return err
	}

	log.Debug().
		Int("keys", len(keys)).
		Dur("duration", duration).
		Msg("Deleted keys from cache")

	return nil
}

// Ping tests the connection to the cache
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Error pinging Redis")
		return err
	}
	return nil
}

// Close releases the connection pool
func (c *RedisCache) Close() error {
	log.Info().Msg("Closing Redis cache connection")
	return c.client.Close()
}
