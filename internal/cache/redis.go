package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares views across API replicas. Each tag is a set of view keys.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "view:", ttl: ttl}
}

func (c *Redis) key(key string) string { return c.prefix + key }

func (c *Redis) tagKey(tag string) string { return c.prefix + "tag:" + tag }

func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get view: %w", err)
	}
	return value, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, tags ...string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(key), value, c.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, c.tagKey(tag), key)
		// Tag sets outlive their views by one TTL so stale members get pruned.
		pipe.Expire(ctx, c.tagKey(tag), 2*c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set view: %w", err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		members, err := c.client.SMembers(ctx, c.tagKey(tag)).Result()
		if err != nil {
			return fmt.Errorf("list tag %s: %w", tag, err)
		}
		keys := make([]string, 0, len(members)+1)
		for _, member := range members {
			keys = append(keys, c.key(member))
		}
		keys = append(keys, c.tagKey(tag))
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("invalidate tag %s: %w", tag, err)
		}
	}
	return nil
}
