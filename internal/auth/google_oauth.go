package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/markbates/goth/providers/google"

	"github.com/hitoshi/memoman/internal/model"
)

// ProviderGoogle はGoogleのプロバイダ名。
const ProviderGoogle = "google"

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient はトークン交換とユーザー情報取得に使う。nilの場合はhttp.DefaultClient
	HTTPClient *http.Client
}

// GoogleOAuthProvider はgothのGoogleプロバイダーによる認証を提供する。
// GitHubと同じくstate管理はハンドラー側のセッションで行う。
type GoogleOAuthProvider struct {
	provider *google.Provider
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
// リフレッシュトークンは保存しないためオンラインアクセスを要求する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	p := google.New(config.ClientID, config.ClientSecret, config.RedirectURL, "openid", "email", "profile")
	p.HTTPClient = config.HTTPClient
	p.SetAccessType("online")
	return &GoogleOAuthProvider{provider: p}
}

// Name はプロバイダ名を返す。
func (p *GoogleOAuthProvider) Name() string {
	return ProviderGoogle
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) (string, error) {
	sess, err := p.provider.BeginAuth(state)
	if err != nil {
		return "", fmt.Errorf("failed to begin google auth: %w", err)
	}
	authURL, err := sess.GetAuthURL()
	if err != nil {
		return "", fmt.Errorf("failed to build google auth URL: %w", err)
	}
	return authURL, nil
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *GoogleOAuthProvider) ExchangeCode(_ context.Context, code string) (*model.UserProfile, error) {
	sess := &google.Session{}
	if _, err := sess.Authorize(p.provider, url.Values{"code": {code}}); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	user, err := p.provider.FetchUser(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if user.UserID == "" {
		return nil, fmt.Errorf("empty user id in google response")
	}

	return &model.UserProfile{
		Provider:       ProviderGoogle,
		ProviderUserID: user.UserID,
		Name:           user.Name,
		Email:          user.Email,
		AvatarURL:      user.AvatarURL,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
