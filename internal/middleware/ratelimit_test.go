package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/hitoshi/memoman/internal/model"
)

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/memos", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_GeneralBurstThen429(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    3,
		MemoCreateRate:  1,
		MemoCreateBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}

	// 別ユーザーは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user: status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_MemoCreateIndependentFromGeneral(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     10,
		GeneralBurst:    10,
		MemoCreateRate:  rate.Limit(1.0 / 60.0),
		MemoCreateBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	create := rl.GeneralMiddleware()(rl.MemoCreateMiddleware()(okHandler()))
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	create.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first create: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	create.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second create: status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("general request after create limit: status = %d, want 200", w.Code)
	}

	if rl.GeneralLimiterCount() != 1 || rl.MemoCreateLimiterCount() != 1 {
		t.Errorf("limiter counts = %d/%d, want 1/1", rl.GeneralLimiterCount(), rl.MemoCreateLimiterCount())
	}
}

func TestRateLimiter_NoUserID_Returns401(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/memos", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		MemoCreateRate:  1,
		MemoCreateBurst: 1,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	start := time.Now()
	rl.general.allow("idle", start.Add(-3*time.Hour))
	rl.general.allow("active", start)
	rl.memoCreate.allow("idle", start.Add(-3*time.Hour))

	rl.cleanup(start)

	if rl.GeneralLimiterCount() != 1 {
		t.Errorf("general entries = %d, want 1", rl.GeneralLimiterCount())
	}
	if rl.MemoCreateLimiterCount() != 0 {
		t.Errorf("memo create entries = %d, want 0", rl.MemoCreateLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewRateLimiter(RateLimiterConfig{CleanupInterval: 10 * time.Millisecond})
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_InChainWithSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-chain", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		MemoCreateRate:  1,
		MemoCreateBurst: 1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := NewSessionMiddleware(finder)(rl.GeneralMiddleware()(okHandler()))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/memos", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i, statuses[i], want[i])
		}
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 {
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.MemoCreateRate != 0.5 {
		t.Errorf("MemoCreateRate = %f, want 0.5", cfg.MemoCreateRate)
	}
	if cfg.MemoCreateBurst != 30 {
		t.Errorf("MemoCreateBurst = %d, want 30", cfg.MemoCreateBurst)
	}
}
