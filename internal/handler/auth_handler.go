// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/model"
)

const (
	// oauthFlowSession はOAuthフロー中のstateと戻り先を保持する署名付きCookieセッションの名前。
	oauthFlowSession = "memoman_oauth"
	oauthFlowMaxAge  = 600

	flowKeyState    = "state"
	flowKeyProvider = "provider"
	flowKeyNext     = "next"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	ProviderNames() []string
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	flowStore sessions.Store
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// flowStoreはOAuthのstateと戻り先パスの保存に使う。
func NewAuthHandler(service AuthServiceInterface, flowStore sessions.Store, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		flowStore: flowStore,
		config:    config,
	}
}

// NewFlowStore はOAuthフロー用の署名付きCookieストアを生成する。
func NewFlowStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.MaxAge(oauthFlowMaxAge)
	store.Options.Path = "/auth"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// Providers は利用可能なログインプロバイダの一覧を返す。
// GET /auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"providers": h.service.ProviderNames(),
	})
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}/login?next=/memos
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	flow, _ := h.flowStore.Get(r, oauthFlowSession)
	flow.Values[flowKeyState] = state
	flow.Values[flowKeyProvider] = provider
	flow.Values[flowKeyNext] = safeNextPath(r.URL.Query().Get("next"))
	if err := flow.Save(r, w); err != nil {
		slog.Error("failed to save oauth flow", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	// 1. stateの検証（CSRF対策）。フローは成否に関わらず破棄する
	flow, _ := h.flowStore.Get(r, oauthFlowSession)
	savedState, _ := flow.Values[flowKeyState].(string)
	savedProvider, _ := flow.Values[flowKeyProvider].(string)
	next, _ := flow.Values[flowKeyNext].(string)

	flow.Values = map[interface{}]interface{}{}
	flow.Options.MaxAge = -1
	if err := flow.Save(r, w); err != nil {
		slog.Warn("failed to clear oauth flow", slog.String("error", err.Error()))
	}

	state := query.Get("state")
	if savedState == "" || savedProvider != provider ||
		subtle.ConstantTimeCompare([]byte(savedState), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		writeAuthError(w, "INVALID_STATE", "認証リクエストの検証に失敗しました。")
		return
	}

	// 2. IdP側でのエラー（ユーザーによる拒否など）
	if idpErr := query.Get("error"); idpErr != "" {
		slog.Warn("oauth provider returned error",
			slog.String("provider", provider),
			slog.String("error", idpErr),
		)
		writeAuthError(w, "OAUTH_DENIED", "ログインがキャンセルされました。")
		return
	}

	code := query.Get("code")
	if code == "" {
		writeAuthError(w, "MISSING_CODE", "認可コードがありません。")
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			handleServiceError(w, err)
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "AUTHENTICATION_FAILED",
			Message:  "ログインに失敗しました。",
			Category: "auth",
			Action:   "時間をおいて再度ログインしてください。",
		})
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)

	// 5. フロントエンドにリダイレクト
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, strings.TrimRight(h.config.BaseURL, "/")+next, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     code,
		Message:  message,
		Category: "auth",
		Action:   "もう一度ログインしてください。",
	})
}

// safeNextPath はログイン後の戻り先をサイト内の絶対パスに限定する。
func safeNextPath(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.RequestURI()
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
