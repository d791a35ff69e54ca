// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "research:cache:"
	redisIndexKey  = "research:cache:index"
)

// RedisStore persists cache entries in Redis. Each entry is a string key
// with a native TTL; a sorted set scored by stored_at supports bulk
// eviction by age.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Load returns the entry stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("loading cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	return e, true, nil
}

// Save writes e with e.TTL as its Redis expiry and records it in the age
// index. The cache saves entries as it stores them, so e.TTL is the
// remaining lifetime on the cache's own clock.
func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	if e.TTL <= 0 {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+e.Key, data, e.TTL)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(e.StoredAt.UnixNano()), Member: e.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// DeleteExpired drops index members whose keys Redis already expired.
func (s *RedisStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	members, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache index: %w", err)
	}
	var stale []any
	for _, m := range members {
		n, err := s.client.Exists(ctx, redisKeyPrefix+m).Result()
		if err != nil {
			return 0, fmt.Errorf("checking cache entry: %w", err)
		}
		if n == 0 {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.client.ZRem(ctx, redisIndexKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("pruning cache index: %w", err)
	}
	return len(stale), nil
}

// DeleteOlderThan removes entries stored before cutoff.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, redisIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache index: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	keys := make([]string, len(members))
	idx := make([]any, len(members))
	for i, m := range members {
		keys[i] = redisKeyPrefix + m
		idx[i] = m
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisIndexKey, idx...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("evicting cache entries: %w", err)
	}
	return len(members), nil
}

// Count returns the number of indexed entries.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return int(n), nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
