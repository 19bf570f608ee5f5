package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.HTTPStatusRecorder // nilなら記録しない
	MetricsHandler    http.Handler                  // nilなら/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	FlowStore   sessions.Store

	// メモ
	MemoService MemoServiceInterface
	Sanitizer   security.ContentSanitizerService

	// ユーザー
	UserService UserServiceInterface

	// ヘルスチェック
	HealthChecker HealthChecker
	UserCounter   UserCounter
	MemoCounter   MemoCounter
	Version       string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  保護ルート: → Session → CSRF → RateLimit(General) [→ RateLimit(MemoCreate)]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.FlowStore, deps.AuthConfig)
	memoHandler := NewMemoHandler(deps.MemoService, deps.Sanitizer)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	healthHandler := NewHealthHandler(deps.HealthChecker, deps.UserCounter, deps.MemoCounter, deps.Version)

	sessionMW := middleware.NewSessionMiddleware(deps.SessionFinder)
	csrfMW := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	r.Get("/health/detailed", healthHandler.Detailed)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/providers", authHandler.Providers)
		r.Get("/{provider}/login", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.With(sessionMW, csrfMW).Post("/logout-all", userHandler.LogoutAll)
	})

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	r.Get("/api/memo-statuses", memoHandler.MemoStatuses)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(sessionMW)
		r.Use(csrfMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", userHandler.Me)

		r.Route("/api/memos", func(r chi.Router) {
			r.Get("/", memoHandler.ListMemos)
			r.With(deps.RateLimiter.MemoCreateMiddleware()).Post("/", memoHandler.CreateMemo)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoHandler.GetMemo)
				r.Patch("/", memoHandler.UpdateMemo)
				r.Delete("/", memoHandler.DeleteMemo)
				r.Post("/status", memoHandler.ChangeStatus)
			})
		})
	})

	return r
}
