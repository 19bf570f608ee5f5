package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	providerNamesFn  func() []string
	getLoginURLFn    func(provider, state string) (string, error)
	handleCallbackFn func(ctx context.Context, provider, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) ProviderNames() []string {
	if m.providerNamesFn != nil {
		return m.providerNamesFn()
	}
	return []string{"github", "google"}
}

func (m *mockAuthService) GetLoginURL(provider, state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(provider, state)
	}
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, provider, code)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

// --- ヘルパー ---

var testAuthConfig = AuthHandlerConfig{
	BaseURL:       "http://localhost:3000",
	SessionMaxAge: 86400,
}

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(svc, NewFlowStore([]byte("test-flow-secret-0123456789abcdef"), false), testAuthConfig)
}

// startLogin はログインを開始し、フローCookieとIdPに渡されたstateを返す。
func startLogin(t *testing.T, h *AuthHandler, provider, next string) ([]*http.Cookie, string) {
	t.Helper()
	target := "/auth/" + provider + "/login"
	if next != "" {
		target += "?next=" + url.QueryEscape(next)
	}
	req := withChiURLParam(httptest.NewRequest(http.MethodGet, target, nil), "provider", provider)
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("login status = %d, want 307", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	return resp.Cookies(), loc.Query().Get("state")
}

func callbackRequest(provider, rawQuery string, cookies []*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/"+provider+"/callback?"+rawQuery, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return withChiURLParam(req, "provider", provider)
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Providers(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	w := httptest.NewRecorder()
	h.Providers(w, httptest.NewRequest(http.MethodGet, "/auth/providers", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "{\"providers\":[\"github\",\"google\"]}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestAuthHandler_Login_SetsFlowCookieAndRedirects(t *testing.T) {
	var gotProvider string
	h := newTestAuthHandler(&mockAuthService{
		getLoginURLFn: func(provider, state string) (string, error) {
			gotProvider = provider
			return "https://github.com/login/oauth/authorize?state=" + state, nil
		},
	})

	cookies, state := startLogin(t, h, "github", "/memos")

	if gotProvider != "github" {
		t.Errorf("provider = %q, want github", gotProvider)
	}
	if len(state) != 32 {
		t.Errorf("state length = %d, want 32", len(state))
	}
	flow := findCookie(cookies, oauthFlowSession)
	if flow == nil {
		t.Fatal("expected oauth flow cookie")
	}
	if !flow.HttpOnly {
		t.Error("flow cookie should be HttpOnly")
	}
	if flow.Path != "/auth" {
		t.Errorf("flow cookie path = %q, want /auth", flow.Path)
	}
}

func TestAuthHandler_Login_UnknownProvider(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		getLoginURLFn: func(provider, state string) (string, error) {
			return "", model.NewUnknownProviderError(provider)
		},
	})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/auth/myspace/login", nil), "provider", "myspace")
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeUnknownProvider {
		t.Errorf("code = %q, want UNKNOWN_PROVIDER", body.Code)
	}
}

func TestAuthHandler_Callback_Success_SetsCookieAndRedirects(t *testing.T) {
	var gotCode string
	h := newTestAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider, code string) (*model.Session, error) {
			gotCode = code
			return &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	})

	cookies, state := startLogin(t, h, "google", "/memos?page=2")

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("google", "code=auth-code&state="+state, cookies))

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307: %s", resp.StatusCode, w.Body.String())
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000/memos?page=2" {
		t.Errorf("Location = %q", loc)
	}
	if gotCode != "auth-code" {
		t.Errorf("code = %q, want auth-code", gotCode)
	}

	session := findCookie(resp.Cookies(), middleware.SessionCookieName)
	if session == nil {
		t.Fatal("expected session cookie")
	}
	if session.Value != "session-abc" || !session.HttpOnly || session.MaxAge != 86400 {
		t.Errorf("session cookie = %+v", session)
	}
	if flow := findCookie(resp.Cookies(), oauthFlowSession); flow == nil || flow.MaxAge >= 0 {
		t.Errorf("flow cookie should be cleared: %+v", flow)
	}
}

func TestAuthHandler_Callback_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		query    func(state string) string
		noFlow   bool
		wantCode string
	}{
		{
			name:     "stateの不一致",
			provider: "google",
			query:    func(string) string { return "code=x&state=forged" },
			wantCode: "INVALID_STATE",
		},
		{
			name:     "フローCookieなし",
			provider: "google",
			query:    func(state string) string { return "code=x&state=" + state },
			noFlow:   true,
			wantCode: "INVALID_STATE",
		},
		{
			name:     "プロバイダの入れ替え",
			provider: "github",
			query:    func(state string) string { return "code=x&state=" + state },
			wantCode: "INVALID_STATE",
		},
		{
			name:     "IdPでの拒否",
			provider: "google",
			query:    func(state string) string { return "error=access_denied&state=" + state },
			wantCode: "OAUTH_DENIED",
		},
		{
			name:     "認可コードなし",
			provider: "google",
			query:    func(state string) string { return "state=" + state },
			wantCode: "MISSING_CODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := newTestAuthHandler(&mockAuthService{
				handleCallbackFn: func(ctx context.Context, provider, code string) (*model.Session, error) {
					called = true
					return &model.Session{ID: "s"}, nil
				},
			})

			cookies, state := startLogin(t, h, "google", "")
			if tt.noFlow {
				cookies = nil
			}

			w := httptest.NewRecorder()
			h.Callback(w, callbackRequest(tt.provider, tt.query(state), cookies))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if called {
				t.Error("HandleCallback should not be called")
			}
			if c := findCookie(w.Result().Cookies(), middleware.SessionCookieName); c != nil {
				t.Error("session cookie should not be set")
			}
		})
	}
}

func TestAuthHandler_Callback_ServiceError(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider, code string) (*model.Session, error) {
			return nil, errors.New("token exchange failed")
		},
	})

	cookies, state := startLogin(t, h, "google", "")

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("google", "code=x&state="+state, cookies))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if body := decodeError(t, w); body.Code != "AUTHENTICATION_FAILED" {
		t.Errorf("code = %q, want AUTHENTICATION_FAILED", body.Code)
	}
}

func TestAuthHandler_Callback_StateIsSingleUse(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, provider, code string) (*model.Session, error) {
			return &model.Session{ID: "s"}, nil
		},
	})

	cookies, state := startLogin(t, h, "google", "")

	first := httptest.NewRecorder()
	h.Callback(first, callbackRequest("google", "code=x&state="+state, cookies))
	if first.Code != http.StatusTemporaryRedirect {
		t.Fatalf("first callback status = %d, want 307", first.Code)
	}

	// 1回目のレスポンスで破棄されたフローCookieを送り直す
	cleared := findCookie(first.Result().Cookies(), oauthFlowSession)
	second := httptest.NewRecorder()
	h.Callback(second, callbackRequest("google", "code=x&state="+state, []*http.Cookie{cleared}))
	if second.Code != http.StatusBadRequest {
		t.Errorf("replayed callback status = %d, want 400", second.Code)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	tests := []struct {
		name          string
		cookie        *http.Cookie
		logoutErr     error
		wantLogoutArg string
	}{
		{"セッションあり", &http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"}, nil, "session-abc"},
		{"セッションなし", nil, nil, ""},
		{"サービスエラーでもCookieは消す", &http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"}, errors.New("db down"), "session-abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := newTestAuthHandler(&mockAuthService{
				logoutFn: func(ctx context.Context, sessionID string) error {
					got = sessionID
					return tt.logoutErr
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			h.Logout(w, req)

			if w.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want 204", w.Code)
			}
			if got != tt.wantLogoutArg {
				t.Errorf("Logout called with %q, want %q", got, tt.wantLogoutArg)
			}
			c := findCookie(w.Result().Cookies(), middleware.SessionCookieName)
			if c == nil || c.MaxAge >= 0 || c.Value != "" {
				t.Errorf("session cookie should be cleared: %+v", c)
			}
		})
	}
}

func TestSafeNextPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/memos", "/memos"},
		{"/memos?page=2", "/memos?page=2"},
		{"https://evil.example.com/", "/"},
		{"//evil.example.com", "/"},
		{`/\evil.example.com`, "/"},
		{"memos", "/"},
	}

	for _, tt := range tests {
		if got := safeNextPath(tt.in); got != tt.want {
			t.Errorf("safeNextPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
