package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/hitoshi/memoman/internal/model"
)

// HealthChecker はDB接続確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// UserCounter はユーザー数集計のインターフェース。
type UserCounter interface {
	Count(ctx context.Context) (int, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// MemoCounter はステータス別メモ件数集計のインターフェース。
type MemoCounter interface {
	CountByStatus(ctx context.Context) (map[model.MemoStatus]int, error)
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db      HealthChecker
	users   UserCounter
	memos   MemoCounter
	version string
	now     func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db HealthChecker, users UserCounter, memos MemoCounter, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		users:   users,
		memos:   memos,
		version: version,
		now:     time.Now,
	}
}

// Health は軽量なヘルスチェック。プロセスが応答できれば200を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "memoman",
		"timestamp": h.now().UTC(),
	})
}

type componentCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthMetrics struct {
	UsersCount             int            `json:"users_count"`
	RecentUsers7d          int            `json:"recent_users_7d"`
	MemosCount             int            `json:"memos_count"`
	MemoStatusDistribution map[string]int `json:"memo_status_distribution"`
	MemoryUsageMB          float64        `json:"memory_usage_mb"`
}

type detailedHealthResponse struct {
	Status         string                    `json:"status"`
	Service        string                    `json:"service"`
	Version        string                    `json:"version"`
	Timestamp      time.Time                 `json:"timestamp"`
	ResponseTimeMs float64                   `json:"response_time_ms"`
	Checks         map[string]componentCheck `json:"checks"`
	Metrics        healthMetrics             `json:"metrics"`
}

// Detailed はDB接続と集計値を含むヘルスチェック。DBが応答しない場合は503を返す。
// GET /health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := detailedHealthResponse{
		Status:    "healthy",
		Service:   "memoman",
		Version:   h.version,
		Timestamp: h.now().UTC(),
		Checks:    map[string]componentCheck{"database": {Status: "healthy"}},
		Metrics:   healthMetrics{MemoStatusDistribution: map[string]int{}},
	}

	statusCode := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = componentCheck{Status: "unhealthy", Error: err.Error()}
		statusCode = http.StatusServiceUnavailable
	} else {
		// 集計の失敗は0件として扱う
		if n, err := h.users.Count(ctx); err == nil {
			resp.Metrics.UsersCount = n
		}
		if n, err := h.users.CountCreatedSince(ctx, h.now().Add(-7*24*time.Hour)); err == nil {
			resp.Metrics.RecentUsers7d = n
		}
		if counts, err := h.memos.CountByStatus(ctx); err == nil {
			for status, n := range counts {
				resp.Metrics.MemoStatusDistribution[string(status)] = n
				resp.Metrics.MemosCount += n
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	resp.Metrics.MemoryUsageMB = float64(mem.Alloc) / 1024 / 1024
	resp.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000

	writeJSON(w, statusCode, resp)
}
