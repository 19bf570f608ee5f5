// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はルーティングに使うプロバイダ名を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) (string, error)
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*model.UserProfile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers    map[string]OAuthProvider
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	sessionCache *SessionCache
	config       ServiceConfig
	now          func() time.Time
}

// NewService はServiceを生成する。sessionCacheはnilでもよい。
func NewService(
	providers []OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sessionCache *SessionCache,
	config ServiceConfig,
) *Service {
	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		providers:    byName,
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		sessionCache: sessionCache,
		config:       config,
		now:          time.Now,
	}
}

// ProviderNames は利用可能なプロバイダ名を昇順で返す。
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, model.NewUnknownProviderError(name)
	}
	return p, nil
}

// GetLoginURL は指定プロバイダのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// ユーザーは自然キー(provider, provider_user_id)でUPSERTされる。
func (s *Service) HandleCallback(ctx context.Context, providerName, code string) (*model.Session, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	profile, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. ユーザーを作成または更新
	user, err := s.UpsertUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// UpsertUser はIdPのプロフィールからユーザーを作成または更新する。
// 既存ユーザーでは空でない値だけが上書きされる。
// 初回ログインかどうかは自然キーの事前検索で判定し、ログに残す。
func (s *Service) UpsertUser(ctx context.Context, profile *model.UserProfile) (*model.User, error) {
	if profile == nil || profile.Provider == "" || profile.ProviderUserID == "" {
		return nil, fmt.Errorf("provider and provider user ID are required")
	}

	existing, err := s.userRepo.FindByProvider(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now().UTC()
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:            uuid.New().String(),
		OAuthProvider: profile.Provider,
		OAuthUserID:   profile.ProviderUserID,
		Name:          profile.Name,
		Email:         profile.Email,
		AvatarURL:     profile.AvatarURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if existing == nil {
		slog.Info("user registered",
			slog.String("user_id", user.ID),
			slog.String("provider", profile.Provider),
		)
	} else {
		slog.Info("user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", profile.Provider),
		)
	}
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.sessionCache != nil {
		s.sessionCache.Invalidate(ctx, sessionID)
	}

	slog.Info("user logged out")
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now().UTC()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
