package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 開発環境でSESSION_SECRETが未設定の場合に使う固定値。本番では使用しない。
const developmentSessionSecret = "memoman-development-session-secret-do-not-use"

// minSessionSecretLength はCookie署名鍵として受け付ける最小バイト数。
const minSessionSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:///memo.db"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	// Session
	SessionSecret    string        `env:"SESSION_SECRET"`
	SessionMaxAge    int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCacheTTL  time.Duration `env:"SESSION_CACHE_TTL" envDefault:"5m"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"10000"`
	RedisURL         string        `env:"REDIS_URL"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral    int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitMemoCreate int `env:"RATE_LIMIT_MEMO_CREATE" envDefault:"30"`

	// Worker
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Server
	ServerPort string `env:"PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は.envファイルと環境変数からConfigを読み込む。
// 必須項目が欠けている場合は、欠けている全項目をまとめたエラーを返す。
func Load() (*Config, error) {
	loadDotEnv(os.Getenv("APP_ENV"))

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize は派生値を埋め、必須項目を検証する。
func (c *Config) finalize() error {
	var missing []string

	base := strings.TrimRight(c.BaseURL, "/")
	if c.GoogleClientID != "" || c.GoogleClientSecret != "" {
		missing = append(missing, pairMissing("GOOGLE", c.GoogleClientID, c.GoogleClientSecret)...)
		if c.GoogleRedirectURL == "" {
			c.GoogleRedirectURL = base + "/auth/google/callback"
		}
	}
	if c.GitHubClientID != "" || c.GitHubClientSecret != "" {
		missing = append(missing, pairMissing("GITHUB", c.GitHubClientID, c.GitHubClientSecret)...)
		if c.GitHubRedirectURL == "" {
			c.GitHubRedirectURL = base + "/auth/github/callback"
		}
	}
	if !c.GoogleEnabled() && !c.GitHubEnabled() && len(missing) == 0 {
		missing = append(missing, "GOOGLE_CLIENT_ID or GITHUB_CLIENT_ID")
	}

	if c.SessionSecret == "" {
		if c.IsDevelopment() {
			c.SessionSecret = developmentSessionSecret
		} else {
			missing = append(missing, "SESSION_SECRET")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(c.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive: %d", c.SessionMaxAge)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitMemoCreate <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive: %s", c.CleanupInterval)
	}

	c.CookieSecure = strings.HasPrefix(c.BaseURL, "https://")
	return nil
}

func pairMissing(prefix, id, secret string) []string {
	var missing []string
	if id == "" {
		missing = append(missing, prefix+"_CLIENT_ID")
	}
	if secret == "" {
		missing = append(missing, prefix+"_CLIENT_SECRET")
	}
	return missing
}

// IsDevelopment は開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// GoogleEnabled はGoogleログインが設定済みかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHubログインが設定済みかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// loadDotEnv は開発環境なら.env.development、それ以外は.envを読み込む。
// 既に設定済みの環境変数は上書きしない。
func loadDotEnv(appEnv string) string {
	name := ".env"
	if appEnv == "development" {
		name = ".env.development"
	}
	if _, err := os.Stat(name); err != nil {
		return ""
	}
	if err := godotenv.Load(name); err != nil {
		return ""
	}
	return name
}
