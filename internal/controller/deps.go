package controller

import (
	"context"

	"docbulk/internal/aws"
	"docbulk/internal/cache"
	"docbulk/internal/config"
	"docbulk/internal/orchestrator"
	"docbulk/pkg/docstore"

	"github.com/rs/zerolog/log"
)

// OpenCache connects to Redis when an address is configured. It returns a
// nil Cache otherwise.
func OpenCache(cfg config.RedisConfig) (cache.Cache, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("address", cfg.Address).Msg("Redis connection established")
	return redisCache, nil
}

// OpenStorage connects to S3 when a bucket is configured. It returns nil otherwise.
func OpenStorage(ctx context.Context, cfg config.S3Config) (*aws.Storage, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	return aws.NewStorage(ctx, cfg)
}

// NewClientRegistry registers the configured docstore client as DEFAULT_CLIENT
func NewClientRegistry(cfg config.DocStoreConfig, c cache.Cache) *orchestrator.ClientRegistry {
	registry := orchestrator.NewClientRegistry()
	registry.Register(DEFAULT_CLIENT, docstore.New(cfg, c))
	return registry
}
