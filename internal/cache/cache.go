// Package cache はセッション参照などに使う短命なキャッシュを提供する。
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store はバイト列のキャッシュインターフェース。
// 見つからない場合はok=falseを返す。
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LRU はプロセス内のTTL付きLRUキャッシュ。
type LRU struct {
	cache *expirable.LRU[string, []byte]
}

// NewLRU はsize件・ttl有効のLRUキャッシュを生成する。
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{cache: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get はキャッシュから値を取得する。
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

// Set は値を保存する。
func (c *LRU) Set(_ context.Context, key string, value []byte) error {
	c.cache.Add(key, value)
	return nil
}

// Delete は値を削除する。
func (c *LRU) Delete(_ context.Context, key string) error {
	c.cache.Remove(key)
	return nil
}

// Len は保持件数を返す。
func (c *LRU) Len() int {
	return c.cache.Len()
}

var _ Store = (*LRU)(nil)
