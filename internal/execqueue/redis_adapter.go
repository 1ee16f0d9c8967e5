package execqueue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// goRedisAdapter adapts *redis.Client to the package's redisClient
// interface.
type goRedisAdapter struct {
	client *redis.Client
}

// NewRedis returns a Queue backed by a live go-redis/v9 client.
func NewRedis(client *redis.Client, maxConcurrent int, keyPrefix string) (*Queue, error) {
	return New(goRedisAdapter{client: client}, maxConcurrent, keyPrefix)
}

func (a goRedisAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.client.Incr(ctx, key).Result()
}

func (a goRedisAdapter) Decr(ctx context.Context, key string) (int64, error) {
	return a.client.Decr(ctx, key).Result()
}

func (a goRedisAdapter) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return a.client.SetNX(ctx, key, value, ttl).Result()
}

func (a goRedisAdapter) Get(ctx context.Context, key string) (string, error) {
	val, err := a.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (a goRedisAdapter) GetDel(ctx context.Context, key string) (string, error) {
	val, err := a.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
