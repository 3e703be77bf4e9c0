package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"specsbiz/backend/internal/domain"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisHealthCache struct {
	client *redis.Client
	locker *redislock.Client
}

func NewRedisHealthCache(client *redis.Client) *RedisHealthCache {
	return &RedisHealthCache{client: client, locker: redislock.New(client)}
}

func (c *RedisHealthCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func healthKey(ownerID string) string {
	return "specsbiz:health:" + ownerID
}

func (c *RedisHealthCache) Get(ctx context.Context, ownerID string) (*domain.BusinessHealth, bool, error) {
	val, err := c.client.Get(ctx, healthKey(ownerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot domain.BusinessHealth
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false, err
	}
	return &snapshot, true, nil
}

func (c *RedisHealthCache) Set(ctx context.Context, ownerID string, value *domain.BusinessHealth, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, healthKey(ownerID), payload, ttl).Err()
}

func (c *RedisHealthCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, healthKey(ownerID)).Err()
}

func (c *RedisHealthCache) Lock(ctx context.Context, ownerID string, ttl time.Duration) (func(), error) {
	lock, err := c.locker.Obtain(ctx, healthKey(ownerID)+":lock", ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 5),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
