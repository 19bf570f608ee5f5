// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/repository"
)

// SessionInvalidator はキャッシュ済みセッションの破棄インターフェース。
type SessionInvalidator interface {
	Invalidate(ctx context.Context, id string)
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	invalidator SessionInvalidator
}

// NewService はServiceの新しいインスタンスを生成する。invalidatorはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	invalidator SessionInvalidator,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		invalidator: invalidator,
	}
}

// Profile はログイン中ユーザーの情報を返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// RevokeSessions はユーザーの全セッションを削除する（全端末からのログアウト）。
// currentSessionIDが指定された場合はキャッシュからも破棄する。
// 他端末のセッションはキャッシュTTL経過後に無効となる。
func (s *Service) RevokeSessions(ctx context.Context, userID, currentSessionID string) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if s.invalidator != nil && currentSessionID != "" {
		s.invalidator.Invalidate(ctx, currentSessionID)
	}

	slog.Info("全セッションを削除しました",
		slog.String("user_id", userID),
	)
	return nil
}
