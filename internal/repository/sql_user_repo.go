package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/memoman/internal/model"
)

const userColumns = `id, oauth_provider, oauth_user_id, name, email, avatar_url, created_at, updated_at`

// SQLUserRepo はdatabase/sqlを使用したユーザーリポジトリ。
type SQLUserRepo struct {
	db *sql.DB
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sql.DB) *SQLUserRepo {
	return &SQLUserRepo{db: db}
}

func scanUser(row scanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.OAuthProvider, &user.OAuthUserID,
		&user.Name, &user.Email, &user.AvatarURL, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByProvider は自然キーでユーザーを検索する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByProvider(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_user_id = $2`,
		provider, providerUserID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider: %w", err)
	}
	return user, nil
}

// Upsert は自然キーでユーザーを作成または更新する。
// 空文字のプロフィール項目は既存値を維持する。
func (r *SQLUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (oauth_provider, oauth_user_id) DO UPDATE SET
		   name       = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
		   email      = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
		   avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE users.avatar_url END,
		   updated_at = excluded.updated_at`,
		user.ID, user.OAuthProvider, user.OAuthUserID, user.Name, user.Email, user.AvatarURL,
		utc(user.CreatedAt), utc(user.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	saved, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_user_id = $2`,
		user.OAuthProvider, user.OAuthUserID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to load upserted user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, nil
}

// Count は登録ユーザー数を返す。
func (r *SQLUserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountCreatedSince は指定時刻以降に登録したユーザー数を返す。
func (r *SQLUserRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= $1`, utc(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent users: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
