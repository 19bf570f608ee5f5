// Package app はアプリケーションの起動とサブコマンドの実行を担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/cache"
	"github.com/hitoshi/memoman/internal/config"
	"github.com/hitoshi/memoman/internal/database"
	"github.com/hitoshi/memoman/internal/handler"
	"github.com/hitoshi/memoman/internal/logger"
	"github.com/hitoshi/memoman/internal/memo"
	"github.com/hitoshi/memoman/internal/metrics"
	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/repository"
	"github.com/hitoshi/memoman/internal/security"
	"github.com/hitoshi/memoman/internal/user"
	"github.com/hitoshi/memoman/internal/worker/cleanup"
)

// Version はビルド時に -ldflags "-X" で埋め込む。
var Version = "dev"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	switch cmd {
	case CommandVersion:
		_, err := fmt.Fprintf(w, "memoman %s\n", Version)
		return err
	case CommandHealthcheck:
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// Container はserveモードで組み立てた依存関係を保持する。
type Container struct {
	Config      *config.Config
	DB          *sql.DB
	Handler     http.Handler
	Cleanup     *cleanup.CleanupJob
	RateLimiter *middleware.RateLimiter
	Registry    *prometheus.Registry

	closers []func() error
}

// NewContainer はDB接続を開き、全依存関係をワイヤリングする。
// SQLiteの場合は起動時にマイグレーションを適用する。
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	// 1. DB接続
	db, dialect, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)

	// 2. リポジトリの初期化
	userRepo := repository.NewSQLUserRepo(db)
	sessionRepo := repository.NewSQLSessionRepo(db)
	memoRepo := repository.NewSQLMemoRepo(db, dialect)

	// 3. セッションキャッシュ
	store, err := c.newSessionStore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	sessionCache := auth.NewSessionCache(sessionRepo, store)

	// 4. メトリクス
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewStatusDistribution(memoRepo),
	)
	collector := metrics.NewCollector(c.Registry)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(
		buildProviders(cfg), userRepo, sessionRepo, sessionCache,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	memoService := memo.NewService(memoRepo, collector)
	userService := user.NewService(userRepo, sessionRepo, sessionCache)

	c.Cleanup = cleanup.NewCleanupJob(sessionRepo, collector, slog.Default())

	// 6. ルーターの構築（設定値はreq/min単位なのでreq/secに変換する）
	limiterCfg := middleware.DefaultRateLimiterConfig()
	limiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
	limiterCfg.GeneralBurst = cfg.RateLimitGeneral
	limiterCfg.MemoCreateRate = rate.Limit(float64(cfg.RateLimitMemoCreate) / 60)
	limiterCfg.MemoCreateBurst = cfg.RateLimitMemoCreate
	c.RateLimiter = middleware.NewRateLimiter(limiterCfg)
	c.closers = append(c.closers, func() error {
		c.RateLimiter.Stop()
		return nil
	})

	authConfig := handler.AuthHandlerConfig{
		BaseURL:       cfg.BaseURL,
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	c.Handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionCache,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    c.RateLimiter,
		StatusRecorder: collector,
		MetricsHandler: metrics.Handler(c.Registry),

		AuthService: authService,
		AuthConfig:  authConfig,
		FlowStore:   handler.NewFlowStore([]byte(cfg.SessionSecret), cfg.CookieSecure),

		MemoService: memoService,
		Sanitizer:   security.NewContentSanitizer(),

		UserService: userService,

		HealthChecker: db,
		UserCounter:   userRepo,
		MemoCounter:   memoRepo,
		Version:       Version,
	})

	return c, nil
}

// Close は保持しているリソースを生成と逆順に解放する。
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// newSessionStore はREDIS_URLがあればRedis、なければプロセス内LRUを返す。
func (c *Container) newSessionStore(ctx context.Context) (cache.Store, error) {
	cfg := c.Config
	if cfg.RedisURL == "" {
		slog.Info("session cache: in-process LRU",
			slog.Int("size", cfg.SessionCacheSize),
			slog.Duration("ttl", cfg.SessionCacheTTL),
		)
		return cache.NewLRU(cfg.SessionCacheSize, cfg.SessionCacheTTL), nil
	}

	store, err := cache.NewRedis(cfg.RedisURL, "memoman:session:", cfg.SessionCacheTTL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.closers = append(c.closers, store.Close)

	slog.Info("session cache: redis", slog.Duration("ttl", cfg.SessionCacheTTL))
	return store, nil
}

// buildProviders は設定済みのOAuthプロバイダを返す。
func buildProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	return providers
}

// openDatabase はDB接続を開いて疎通を確認する。SQLiteはマイグレーションも適用する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, database.Dialect, error) {
	dialect := database.DialectOf(databaseURL)

	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == database.DialectSQLite {
		if err := database.Migrate(db, dialect); err != nil {
			db.Close()
			return nil, "", err
		}
	}

	slog.Info("database connection established", slog.String("dialect", string(dialect)))
	return db, dialect, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      c.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 期限切れセッションの削除はサーバープロセス内でも実行する
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()
	go c.Cleanup.Start(jobCtx, cfg.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除をctxがキャンセルされるまで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewSQLSessionRepo(db), nil, slog.Default())

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// SQLiteのURLは認証情報を含まないためそのまま返す。
func maskDatabaseURL(url string) string {
	if database.DialectOf(url) == database.DialectSQLite {
		return url
	}
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
