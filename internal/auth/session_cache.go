package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hitoshi/memoman/internal/cache"
	"github.com/hitoshi/memoman/internal/model"
)

// SessionFinder はセッションID検索のインターフェース。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionCache はセッション検索結果をキャッシュするSessionFinder。
// キャッシュの障害時はリポジトリへフォールバックする。
type SessionCache struct {
	finder SessionFinder
	store  cache.Store
	now    func() time.Time
}

// NewSessionCache はSessionCacheを生成する。
func NewSessionCache(finder SessionFinder, store cache.Store) *SessionCache {
	return &SessionCache{finder: finder, store: store, now: time.Now}
}

const sessionCacheKeyPrefix = "session:"

// FindByID はキャッシュを優先してセッションを取得する。期限切れの場合はnilを返す。
func (c *SessionCache) FindByID(ctx context.Context, id string) (*model.Session, error) {
	key := sessionCacheKeyPrefix + id

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("session cache get failed", slog.String("error", err.Error()))
	}
	if ok {
		var session model.Session
		if err := json.Unmarshal(raw, &session); err == nil {
			if session.IsExpired(c.now()) {
				c.Invalidate(ctx, id)
				return nil, nil
			}
			return &session, nil
		}
	}

	session, err := c.finder.FindByID(ctx, id)
	if err != nil || session == nil {
		return session, err
	}

	if raw, err := json.Marshal(session); err == nil {
		if err := c.store.Set(ctx, key, raw); err != nil {
			slog.Warn("session cache set failed", slog.String("error", err.Error()))
		}
	}
	return session, nil
}

// Invalidate はキャッシュからセッションを削除する。
func (c *SessionCache) Invalidate(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, sessionCacheKeyPrefix+id); err != nil {
		slog.Warn("session cache delete failed", slog.String("error", err.Error()))
	}
}
