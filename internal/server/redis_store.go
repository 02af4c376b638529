package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenStore keeps fixed-window counters in Redis so the go-live throttle
// holds across replicas. Each key is incremented and given a TTL on first use;
// once the count passes the limit the remaining TTL becomes the retry delay.
type redisTokenStore struct {
	client *redis.Client
}

func newRedisTokenStore(addr, password string, db int) (*redisTokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect rate limit redis at %s: %w", addr, err)
	}
	return &redisTokenStore{client: client}, nil
}

func (s *redisTokenStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	namespaced := "fernando:ratelimit:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, namespaced)
	pipe.ExpireNX(ctx, namespaced, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("increment %s: %w", namespaced, err)
	}

	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := s.client.TTL(ctx, namespaced).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}

func (s *redisTokenStore) Close() error {
	return s.client.Close()
}
