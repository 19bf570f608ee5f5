package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memoman/internal/model"
)

func TestSQLUserRepo_Upsert_CreatesNewUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	id := uuid.NewString()
	user, err := repo.Upsert(ctx, &model.User{
		ID:            id,
		OAuthProvider: "github",
		OAuthUserID:   "42",
		Name:          "Octo Cat",
		Email:         "octo@example.com",
		AvatarURL:     "https://example.com/a.png",
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != id {
		t.Errorf("ID = %q, want %q", user.ID, id)
	}
	if user.Email != "octo@example.com" || user.AvatarURL != "https://example.com/a.png" {
		t.Errorf("unexpected profile: %+v", user)
	}
	if !user.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", user.CreatedAt, baseTime)
	}
}

func TestSQLUserRepo_Upsert_MergesProfileOnNaturalKey(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, &model.User{
		ID: uuid.NewString(), OAuthProvider: "github", OAuthUserID: "42",
		Name: "Old Name", Email: "old@example.com", AvatarURL: "https://example.com/old.png",
		CreatedAt: baseTime, UpdatedAt: baseTime,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	later := baseTime.Add(24 * time.Hour)
	// 新しい値は上書きし、空文字は既存値を維持する
	second, err := repo.Upsert(ctx, &model.User{
		ID: uuid.NewString(), OAuthProvider: "github", OAuthUserID: "42",
		Name: "New Name", Email: "", AvatarURL: "",
		CreatedAt: later, UpdatedAt: later,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("ID changed on upsert: %q -> %q", first.ID, second.ID)
	}
	if second.Name != "New Name" {
		t.Errorf("Name = %q, want %q", second.Name, "New Name")
	}
	if second.Email != "old@example.com" {
		t.Errorf("Email = %q, want existing value kept", second.Email)
	}
	if second.AvatarURL != "https://example.com/old.png" {
		t.Errorf("AvatarURL = %q, want existing value kept", second.AvatarURL)
	}
	if !second.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want original %v", second.CreatedAt, baseTime)
	}
	if !second.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", second.UpdatedAt, later)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLUserRepo_Upsert_SameIDDifferentProvider(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	for _, provider := range []string{"github", "google"} {
		_, err := repo.Upsert(ctx, &model.User{
			ID: uuid.NewString(), OAuthProvider: provider, OAuthUserID: "1",
			CreatedAt: baseTime, UpdatedAt: baseTime,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", provider, err)
		}
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2 (natural key includes provider)", n)
	}
}

func TestSQLUserRepo_FindByProviderAndID(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	id := createTestUser(t, db, "7")

	byProvider, err := repo.FindByProvider(ctx, "github", "7")
	if err != nil {
		t.Fatalf("FindByProvider: %v", err)
	}
	if byProvider == nil || byProvider.ID != id {
		t.Fatalf("FindByProvider = %+v, want id %q", byProvider, id)
	}

	byID, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID == nil || byID.OAuthUserID != "7" {
		t.Fatalf("FindByID = %+v", byID)
	}

	missing, err := repo.FindByProvider(ctx, "google", "7")
	if err != nil {
		t.Fatalf("FindByProvider missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown natural key, got %+v", missing)
	}
}

func TestSQLUserRepo_CountCreatedSince(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLUserRepo(db)
	ctx := context.Background()

	createTestUser(t, db, "1")
	_, err := repo.Upsert(ctx, &model.User{
		ID: uuid.NewString(), OAuthProvider: "github", OAuthUserID: "2",
		CreatedAt: baseTime.Add(10 * 24 * time.Hour), UpdatedAt: baseTime.Add(10 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := repo.CountCreatedSince(ctx, baseTime.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("CountCreatedSince: %v", err)
	}
	if n != 1 {
		t.Errorf("CountCreatedSince = %d, want 1", n)
	}
}
