package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/cache"
	"github.com/hitoshi/memoman/internal/model"
)

func TestSessionCache_HitsRepositoryOnce(t *testing.T) {
	calls := 0
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			calls++
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	sc := NewSessionCache(repo, cache.NewLRU(10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := sc.FindByID(ctx, "sess-1")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if s == nil || s.UserID != "user-1" {
			t.Fatalf("FindByID = %+v", s)
		}
	}
	if calls != 1 {
		t.Errorf("repository calls = %d, want 1", calls)
	}
}

func TestSessionCache_MissingSessionNotCached(t *testing.T) {
	calls := 0
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			calls++
			return nil, nil
		},
	}
	sc := NewSessionCache(repo, cache.NewLRU(10, time.Minute))

	for i := 0; i < 2; i++ {
		s, err := sc.FindByID(context.Background(), "unknown")
		if err != nil || s != nil {
			t.Fatalf("FindByID = (%v, %v), want (nil, nil)", s, err)
		}
	}
	if calls != 2 {
		t.Errorf("repository calls = %d, want 2", calls)
	}
}

func TestSessionCache_ExpiredEntryDropped(t *testing.T) {
	expiresAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := cache.NewLRU(10, time.Hour)
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: expiresAt}, nil
		},
	}
	sc := NewSessionCache(repo, store)
	sc.now = func() time.Time { return expiresAt.Add(-time.Minute) }
	ctx := context.Background()

	if s, _ := sc.FindByID(ctx, "sess-1"); s == nil {
		t.Fatal("expected cached session before expiry")
	}

	sc.now = func() time.Time { return expiresAt.Add(time.Minute) }
	s, err := sc.FindByID(ctx, "sess-1")
	if err != nil || s != nil {
		t.Fatalf("FindByID after expiry = (%v, %v), want (nil, nil)", s, err)
	}
	if store.Len() != 0 {
		t.Errorf("expired entry should be evicted, Len = %d", store.Len())
	}
}

func TestSessionCache_RepositoryError(t *testing.T) {
	dbErr := errors.New("db down")
	sc := NewSessionCache(&mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, dbErr
		},
	}, cache.NewLRU(10, time.Minute))

	if _, err := sc.FindByID(context.Background(), "sess-1"); !errors.Is(err, dbErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
}
