package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/memoman/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByProvider(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	return user, nil
}
func (m *mockUserRepo) Count(ctx context.Context) (int, error) { return 0, nil }
func (m *mockUserRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	return 0, nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}
func (m *mockSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockInvalidator struct {
	ids []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, id string) {
	m.ids = append(m.ids, id)
}

// --- テスト ---

func TestProfile_Found(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Test"}, nil
		},
	}, nil, nil)

	user, err := svc.Profile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "user-1" || user.Name != "Test" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestProfile_NotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, nil, nil)

	_, err := svc.Profile(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestProfile_RepositoryError(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("db error")
		},
	}, nil, nil)

	if _, err := svc.Profile(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRevokeSessions(t *testing.T) {
	var deletedFor string
	inv := &mockInvalidator{}
	svc := NewService(
		&mockUserRepo{findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		}},
		&mockSessionRepo{deleteByUserIDFn: func(ctx context.Context, userID string) error {
			deletedFor = userID
			return nil
		}},
		inv,
	)

	if err := svc.RevokeSessions(context.Background(), "user-1", "sess-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deletedFor != "user-1" {
		t.Errorf("DeleteByUserID called with %q, want user-1", deletedFor)
	}
	if len(inv.ids) != 1 || inv.ids[0] != "sess-1" {
		t.Errorf("invalidated = %v, want [sess-1]", inv.ids)
	}
}

func TestRevokeSessions_DeleteError(t *testing.T) {
	inv := &mockInvalidator{}
	svc := NewService(
		&mockUserRepo{findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		}},
		&mockSessionRepo{deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db error")
		}},
		inv,
	)

	if err := svc.RevokeSessions(context.Background(), "user-1", "sess-1"); err == nil {
		t.Fatal("expected error")
	}
	if len(inv.ids) != 0 {
		t.Error("cache must not be touched when delete fails")
	}
}
