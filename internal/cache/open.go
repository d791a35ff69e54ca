// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Open builds a cache with the persistent tier selected by cfg.Backend.
func Open(ctx context.Context, cfg types.CacheConfig, logger *zap.Logger) (*Cache, error) {
	opts := Options{TTL: cfg.TTL, MaxBytes: cfg.MaxBytes, Logger: logger}

	switch cfg.Backend {
	case types.CacheMemory, "":
	case types.CacheSQLite:
		st, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		opts.Store = st
	case types.CacheRedis:
		st, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		opts.Store = st
	default:
		return nil, &types.ConfigurationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
	return New(opts), nil
}
