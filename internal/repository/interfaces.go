// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/memoman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByProvider は自然キー(provider, provider_user_id)でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByProvider(ctx context.Context, provider, providerUserID string) (*model.User, error)

	// Upsert は自然キーでユーザーを作成または更新し、保存後のユーザーを返す。
	// 既存ユーザーの場合、空でないプロフィール項目のみ上書きし、IDと作成日時は維持する。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// CountCreatedSince は指定時刻以降に登録したユーザー数を返す。
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// MemoRepository はメモの永続化インターフェース。
// すべての操作は所有者(userID)の範囲に限定される。
type MemoRepository interface {
	// Create はメモを作成する。タイトル・本文が制約を満たさない場合はValidationErrorを返す。
	Create(ctx context.Context, memo *model.Memo) error

	// FindByID は所有者のメモを取得する。
	// 存在しない場合と他ユーザーのメモの場合はどちらもnilを返す。
	FindByID(ctx context.Context, id, userID string) (*model.Memo, error)

	// ListByUserID は所有者のメモをupdated_at降順でページ単位に取得する。
	// 返却前にページ内の期限切れメモをexpiredへ昇格し、一括で保存する。
	ListByUserID(ctx context.Context, userID string, page, pageSize int, now time.Time) (*model.MemoPage, error)

	// Update は行ロックを取得したうえでmutateを適用し、同一トランザクションで保存する。
	// メモが見つからない場合はnilを返す。mutateがエラーを返した場合は何も保存しない。
	Update(ctx context.Context, id, userID string, mutate func(m *model.Memo) error) (*model.Memo, error)

	// PromoteExpired は指定メモのうち昇格対象かつ期限切れのものをexpiredに更新し、更新件数を返す。
	PromoteExpired(ctx context.Context, userID string, ids []string, now time.Time) (int64, error)

	// Delete は所有者のメモを物理削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// CountByStatus は全メモのステータス別件数を返す。
	CountByStatus(ctx context.Context) (map[model.MemoStatus]int, error)
}
