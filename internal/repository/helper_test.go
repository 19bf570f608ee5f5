package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/memoman/internal/database"
	"github.com/hitoshi/memoman/internal/model"
)

// openTestDB はマイグレーション済みのインメモリSQLiteを返す。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open("sqlite://:memory:")
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, database.DialectSQLite); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	return db
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestUser はテスト用ユーザーを作成してIDを返す。
func createTestUser(t *testing.T, db *sql.DB, providerUserID string) string {
	t.Helper()

	user, err := NewSQLUserRepo(db).Upsert(context.Background(), &model.User{
		ID:            uuid.NewString(),
		OAuthProvider: "github",
		OAuthUserID:   providerUserID,
		Name:          "user " + providerUserID,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	})
	if err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	return user.ID
}
