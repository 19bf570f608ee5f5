package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis は複数インスタンスで共有するRedisキャッシュ。
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis はREDIS_URL形式の接続文字列からRedisキャッシュを生成する。
// キーにはprefixを付与する。
func NewRedis(redisURL, prefix string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opt), prefix: prefix, ttl: ttl}, nil
}

// Ping は接続を確認する。
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close は接続を閉じる。
func (c *Redis) Close() error {
	return c.client.Close()
}

// Get はキャッシュから値を取得する。
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return v, true, nil
}

// Set は値をTTL付きで保存する。
func (c *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete は値を削除する。
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
