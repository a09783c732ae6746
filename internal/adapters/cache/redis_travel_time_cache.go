package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meeting-point-service/internal/domain"
)

const defaultRedisPrefix = "meetpoint:tt:"

// RedisTravelTimeCache stores travel-time results in Redis with a native TTL,
// so several service instances can share lookups.
type RedisTravelTimeCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisTravelTimeCache(client *redis.Client, ttl time.Duration) *RedisTravelTimeCache {
	return &RedisTravelTimeCache{client: client, ttl: ttl, prefix: defaultRedisPrefix}
}

func (r *RedisTravelTimeCache) Get(ctx context.Context, key string) (domain.TravelTimeResult, bool, error) {
	if r.client == nil {
		return domain.TravelTimeResult{}, false, errors.New("redis travel time cache: client is nil")
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TravelTimeResult{}, false, nil
	}
	if err != nil {
		return domain.TravelTimeResult{}, false, fmt.Errorf("get travel time cache: redis get: %w", err)
	}

	var res domain.TravelTimeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.TravelTimeResult{}, false, fmt.Errorf("get travel time cache: decode %q: %w", key, err)
	}
	return res, true, nil
}

func (r *RedisTravelTimeCache) Put(ctx context.Context, key string, result domain.TravelTimeResult) error {
	if r.client == nil {
		return errors.New("redis travel time cache: client is nil")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("insert travel time cache: encode: %w", err)
	}

	if err := r.client.Set(ctx, r.prefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("insert travel time cache: redis set: %w", err)
	}
	return nil
}

// Clear deletes every key under the cache prefix.
func (r *RedisTravelTimeCache) Clear(ctx context.Context) error {
	if r.client == nil {
		return errors.New("redis travel time cache: client is nil")
	}

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clear travel time cache: redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("clear travel time cache: redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clear travel time cache: redis del: %w", err)
		}
	}
	return nil
}
