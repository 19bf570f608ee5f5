package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/markbates/goth/providers/github"

	"github.com/hitoshi/memoman/internal/model"
)

// ProviderGitHub はGitHubのプロバイダ名。
const ProviderGitHub = "github"

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL。すべて空の場合はGitHubの既定URLを使う
	AuthURL    string
	TokenURL   string
	ProfileURL string
	EmailURL   string
}

// GitHubOAuthProvider はgothのGitHubプロバイダーによる認証を提供する。
// gothicは使わず、state管理はハンドラー側のセッションで行う。
type GitHubOAuthProvider struct {
	provider *github.Provider
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
// メールアドレスが非公開のユーザーに対応するためuser:emailスコープを要求する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	scopes := []string{"read:user", "user:email"}

	var p *github.Provider
	if config.AuthURL == "" && config.TokenURL == "" && config.ProfileURL == "" && config.EmailURL == "" {
		p = github.New(config.ClientID, config.ClientSecret, config.RedirectURL, scopes...)
	} else {
		p = github.NewCustomisedURL(config.ClientID, config.ClientSecret, config.RedirectURL,
			config.AuthURL, config.TokenURL, config.ProfileURL, config.EmailURL, scopes...)
	}
	return &GitHubOAuthProvider{provider: p}
}

// Name はプロバイダ名を返す。
func (p *GitHubOAuthProvider) Name() string {
	return ProviderGitHub
}

// GetLoginURL はGitHubの認証URLを生成する。
func (p *GitHubOAuthProvider) GetLoginURL(state string) (string, error) {
	sess, err := p.provider.BeginAuth(state)
	if err != nil {
		return "", fmt.Errorf("failed to begin github auth: %w", err)
	}
	authURL, err := sess.GetAuthURL()
	if err != nil {
		return "", fmt.Errorf("failed to build github auth URL: %w", err)
	}
	return authURL, nil
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 表示名が未設定のユーザーはログイン名を表示名とする。
func (p *GitHubOAuthProvider) ExchangeCode(_ context.Context, code string) (*model.UserProfile, error) {
	sess := &github.Session{}
	if _, err := sess.Authorize(p.provider, url.Values{"code": {code}}); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	user, err := p.provider.FetchUser(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if user.UserID == "" {
		return nil, fmt.Errorf("empty user id in github response")
	}

	name := user.Name
	if name == "" {
		name = user.NickName
	}

	return &model.UserProfile{
		Provider:       ProviderGitHub,
		ProviderUserID: user.UserID,
		Name:           name,
		Email:          user.Email,
		AvatarURL:      user.AvatarURL,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
