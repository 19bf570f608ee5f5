package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/memoman/internal/database"
	"github.com/hitoshi/memoman/internal/model"
)

const memoColumns = `id, user_id, title, content, status, created_at, updated_at, completed_at, expires_at`

// promotableStatuses は期限切れ昇格の対象となるステータスのSQL表現。
const promotableStatuses = `('pending', 'in_progress', 'completed')`

// SQLMemoRepo はdatabase/sqlを使用したメモリポジトリ。
// PostgreSQLとSQLiteの差異はdialectで吸収する。
type SQLMemoRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLMemoRepo はSQLMemoRepoを生成する。
func NewSQLMemoRepo(db *sql.DB, dialect database.Dialect) *SQLMemoRepo {
	return &SQLMemoRepo{db: db, dialect: dialect}
}

func scanMemo(row scanner) (*model.Memo, error) {
	m := &model.Memo{}
	var status string
	var completedAt, expiresAt sql.NullTime
	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Content, &status,
		&m.CreatedAt, &m.UpdatedAt, &completedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	m.Status = model.MemoStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.CompletedAt = fromNullTime(completedAt)
	m.ExpiresAt = fromNullTime(expiresAt)
	return m, nil
}

// Create はメモを作成する。書き込み前に制約を検証する。
func (r *SQLMemoRepo) Create(ctx context.Context, memo *model.Memo) error {
	if err := memo.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memos (`+memoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		memo.ID, memo.UserID, memo.Title, memo.Content, string(memo.Status),
		utc(memo.CreatedAt), utc(memo.UpdatedAt), toNullTime(memo.CompletedAt), toNullTime(memo.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create memo: %w", err)
	}
	return nil
}

// FindByID は所有者のメモを取得する。見つからない場合はnilを返す。
func (r *SQLMemoRepo) FindByID(ctx context.Context, id, userID string) (*model.Memo, error) {
	m, err := scanMemo(r.db.QueryRowContext(ctx,
		`SELECT `+memoColumns+` FROM memos WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find memo: %w", err)
	}
	return m, nil
}

// ListByUserID は所有者のメモをupdated_at降順で取得し、期限切れを一括昇格する。
func (r *SQLMemoRepo) ListByUserID(ctx context.Context, userID string, page, pageSize int, now time.Time) (*model.MemoPage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &model.MemoPage{Page: page, PageSize: pageSize}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memos WHERE user_id = $1`, userID,
	).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count memos: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+memoColumns+` FROM memos
		 WHERE user_id = $1
		 ORDER BY updated_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memos: %w", err)
	}

	items := make([]*model.Memo, 0, pageSize)
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate memos: %w", err)
	}
	rows.Close()

	var expired []string
	for _, m := range items {
		if m.CheckAndPromoteExpiry(now) {
			expired = append(expired, m.ID)
		}
	}
	if len(expired) > 0 {
		n, err := promoteExpired(ctx, tx, userID, expired, now)
		if err != nil {
			return nil, err
		}
		result.Promoted = int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Items = items
	return result, nil
}

// Update は行ロックを取得してmutateを適用し、同一トランザクションで保存する。
func (r *SQLMemoRepo) Update(ctx context.Context, id, userID string, mutate func(m *model.Memo) error) (*model.Memo, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := scanMemo(tx.QueryRowContext(ctx,
		`SELECT `+memoColumns+` FROM memos WHERE id = $1 AND user_id = $2`+r.dialect.LockClause(),
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock memo: %w", err)
	}

	if err := mutate(m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	// IDと所有者は変更させない
	m.ID, m.UserID = id, userID
	_, err = tx.ExecContext(ctx,
		`UPDATE memos
		 SET title = $1, content = $2, status = $3, updated_at = $4, completed_at = $5, expires_at = $6
		 WHERE id = $7 AND user_id = $8`,
		m.Title, m.Content, string(m.Status), utc(m.UpdatedAt),
		toNullTime(m.CompletedAt), toNullTime(m.ExpiresAt), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update memo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return m, nil
}

// PromoteExpired は指定メモのうち昇格対象かつ期限切れのものをexpiredに更新する。
// 条件付きUPDATEのため、同時にclosedへ変更されたメモを上書きしない。
func (r *SQLMemoRepo) PromoteExpired(ctx context.Context, userID string, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return promoteExpired(ctx, r.db, userID, ids, now)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func promoteExpired(ctx context.Context, db execer, userID string, ids []string, now time.Time) (int64, error) {
	args := make([]any, 0, len(ids)+2)
	args = append(args, utc(now), userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE memos SET status = 'expired', updated_at = $1
		 WHERE user_id = $2
		   AND id IN (`+placeholders(3, len(ids))+`)
		   AND status IN `+promotableStatuses+`
		   AND expires_at IS NOT NULL
		   AND expires_at < $1`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to promote expired memos: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Delete は所有者のメモを物理削除する。
func (r *SQLMemoRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM memos WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete memo: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CountByStatus は全メモのステータス別件数を返す。件数0のステータスも含む。
func (r *SQLMemoRepo) CountByStatus(ctx context.Context) (map[model.MemoStatus]int, error) {
	counts := make(map[model.MemoStatus]int, len(model.MemoStatuses()))
	for _, s := range model.MemoStatuses() {
		counts[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM memos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count memos by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[model.MemoStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// compile-time interface check
var _ MemoRepository = (*SQLMemoRepo)(nil)
