package counter

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a Counter stored under a single Redis key.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis wraps client. The key is not reset; call Reset from the supervisor.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Reset sets the counter to zero.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Set(ctx, r.key, 0, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Inc(ctx context.Context) (int64, error) {
	v, err := r.client.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", r.key, err)
	}
	return v, nil
}

func (r *Redis) Dec(ctx context.Context) (int64, error) {
	v, err := r.client.Decr(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis DECR %s: %w", r.key, err)
	}
	return v, nil
}

func (r *Redis) Load(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET %s: %w", r.key, err)
	}
	return v, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
