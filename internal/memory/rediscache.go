package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps embedded chunks per URL in redis with a TTL; expiry is
// redis's job, so Prune is a no-op.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

func chunkKey(url string) string {
	return fmt.Sprintf("chunks:%s", sha1Hex(url))
}

func (c *RedisCache) Get(ctx context.Context, url string) ([]Chunk, bool, error) {
	val, err := c.client.Get(ctx, chunkKey(url)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var chunks []Chunk
	if err := json.Unmarshal([]byte(val), &chunks); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	return chunks, true, nil
}

func (c *RedisCache) Put(ctx context.Context, url string, chunks []Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, chunkKey(url), data, c.ttl).Err()
}

func (c *RedisCache) Prune(ctx context.Context) (int, error) { return 0, nil }

func (c *RedisCache) Close() error { return c.client.Close() }
