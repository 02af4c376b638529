package viewers

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL bounds how long an abandoned counter lingers when leave events
// are lost, e.g. a client that dropped its connection mid-broadcast.
const counterTTL = 24 * time.Hour

// RedisTracker keeps viewer counts in Redis so every replica of the service
// sees the same live figures.
type RedisTracker struct {
	client *redis.Client
	prefix string
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(ctx context.Context, addr, password string, db int) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisTracker{client: client, prefix: "fernando:viewers:"}, nil
}

func (t *RedisTracker) key(streamID string) string {
	return t.prefix + streamID
}

func (t *RedisTracker) Join(ctx context.Context, streamID string) (int64, error) {
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, t.key(streamID))
	pipe.Expire(ctx, t.key(streamID), counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("viewer join: %w", err)
	}
	return incr.Val(), nil
}

// leaveScript decrements without letting the gauge go negative; duplicate
// leave events would otherwise drive it below zero.
var leaveScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('SET', KEYS[1], 0)
  return 0
end
return v
`)

func (t *RedisTracker) Leave(ctx context.Context, streamID string) (int64, error) {
	count, err := leaveScript.Run(ctx, t.client, []string{t.key(streamID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("viewer leave: %w", err)
	}
	return count, nil
}

func (t *RedisTracker) Count(ctx context.Context, streamID string) (int64, error) {
	count, err := t.client.Get(ctx, t.key(streamID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("viewer count: %w", err)
	}
	return count, nil
}

func (t *RedisTracker) Reset(ctx context.Context, streamID string) error {
	if err := t.client.Del(ctx, t.key(streamID)).Err(); err != nil {
		return fmt.Errorf("viewer reset: %w", err)
	}
	return nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
