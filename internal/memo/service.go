// Package memo はメモのライフサイクル管理を提供する。
// メモの状態を変更する唯一の入口で、所有者スコープと遷移表を強制する。
package memo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/memoman/internal/idx"
	"github.com/hitoshi/memoman/internal/model"
	"github.com/hitoshi/memoman/internal/repository"
)

// ページングの既定値
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// MetricsRecorder はメモ操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordMemoOperation(op string)
	RecordStatusTransition(from, to model.MemoStatus)
	RecordExpiryPromotions(count int)
}

// CreateInput はメモ作成の入力。Statusが空の場合はpendingになる。
type CreateInput struct {
	Title     string
	Content   string
	Status    model.MemoStatus
	ExpiresAt *time.Time
}

// UpdateInput はメモの部分更新の入力。nilのフィールドは変更しない。
// ClearExpiryがtrueの場合は期限を解除し、ExpiresAtは無視する。
type UpdateInput struct {
	Title       *string
	Content     *string
	Status      *model.MemoStatus
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Service はメモ管理のサービス層。
type Service struct {
	memoRepo repository.MemoRepository
	metrics  MetricsRecorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(memoRepo repository.MemoRepository, metrics MetricsRecorder) *Service {
	return &Service{
		memoRepo: memoRepo,
		metrics:  metrics,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// CreateMemo はメモを作成する。期限が既に過ぎている場合はexpiredとして保存する。
func (s *Service) CreateMemo(ctx context.Context, userID string, in CreateInput) (*model.Memo, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, &model.ValidationError{Field: "status", Reason: "unknown status"}
	}

	now := s.now()
	m := model.NewMemo(idx.NewAt(now), userID, in.Title, in.Content, in.Status, in.ExpiresAt, now)
	promoted := m.CheckAndPromoteExpiry(now)

	if err := s.memoRepo.Create(ctx, m); err != nil {
		return nil, err
	}

	s.recordOperation("create")
	if promoted {
		s.recordPromotions(1)
	}
	slog.Info("メモを作成しました",
		slog.String("user_id", userID),
		slog.String("memo_id", m.ID),
		slog.String("status", string(m.Status)),
	)
	return m, nil
}

// GetMemo は所有者のメモを取得する。見つからない場合はnilを返す。
// 期限切れのメモは返却前にexpiredへ昇格して保存する。
func (s *Service) GetMemo(ctx context.Context, id, userID string) (*model.Memo, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}

	m, err := s.memoRepo.FindByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("メモの取得に失敗しました: %w", err)
	}
	if m == nil {
		return nil, nil
	}

	now := s.now()
	if !m.CheckAndPromoteExpiry(now) {
		return m, nil
	}

	n, err := s.memoRepo.PromoteExpired(ctx, userID, []string{id}, now)
	if err != nil {
		return nil, fmt.Errorf("期限切れメモの更新に失敗しました: %w", err)
	}
	if n == 0 {
		// 取得後に別リクエストで変更された。保存済みの状態を返す
		m, err = s.memoRepo.FindByID(ctx, id, userID)
		if err != nil {
			return nil, fmt.Errorf("メモの取得に失敗しました: %w", err)
		}
		return m, nil
	}
	s.recordPromotions(int(n))
	return m, nil
}

// ListMemos は所有者のメモ一覧をupdated_at降順で返す。
// pageは1始まり。pageSizeは1からMaxPageSizeに丸める。
// OFFSETがintに収まらないpageは表現可能な最後のページに丸める。
func (s *Service) ListMemos(ctx context.Context, userID string, page, pageSize int) (*model.MemoPage, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if maxPage := math.MaxInt / pageSize; page > maxPage {
		page = maxPage
	}

	result, err := s.memoRepo.ListByUserID(ctx, userID, page, pageSize, s.now())
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	s.recordPromotions(result.Promoted)
	return result, nil
}

// UpdateMemo はメモを部分更新する。見つからない場合はnilを返す。
// 現在と同じステータスの指定は省略と同じ扱いで、completed_atも変更しない。
// 遷移表で許可されていない変更はInvalidTransitionErrorを返し、メモは変更されない。
func (s *Service) UpdateMemo(ctx context.Context, id, userID string, in UpdateInput) (*model.Memo, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	if in.Status != nil && !in.Status.IsValid() {
		return nil, &model.ValidationError{Field: "status", Reason: "unknown status"}
	}

	now := s.now()
	var (
		promoted   int
		transition *[2]model.MemoStatus
	)
	m, err := s.memoRepo.Update(ctx, id, userID, func(m *model.Memo) error {
		promoted = 0
		transition = nil

		// 保存済みの期限で先に昇格させ、現在の状態を確定する
		if m.CheckAndPromoteExpiry(now) {
			promoted++
		}

		changed := applyFields(m, in)
		if in.Status != nil && *in.Status != m.Status {
			from := m.Status
			if err := m.ChangeStatus(*in.Status, now); err != nil {
				return err
			}
			transition = &[2]model.MemoStatus{from, m.Status}
		}
		if changed {
			m.UpdatedAt = now
		}

		// 新しい期限が既に過ぎている場合
		if m.CheckAndPromoteExpiry(now) {
			promoted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	s.recordOperation("update")
	s.recordPromotions(promoted)
	if transition != nil && s.metrics != nil {
		s.metrics.RecordStatusTransition(transition[0], transition[1])
	}
	slog.Info("メモを更新しました",
		slog.String("user_id", userID),
		slog.String("memo_id", id),
		slog.String("status", string(m.Status)),
	)
	return m, nil
}

// applyFields はタイトル・本文・期限を反映し、変更があればtrueを返す。
func applyFields(m *model.Memo, in UpdateInput) bool {
	changed := false
	if in.Title != nil && *in.Title != m.Title {
		m.Title = *in.Title
		changed = true
	}
	if in.Content != nil && *in.Content != m.Content {
		m.Content = *in.Content
		changed = true
	}
	switch {
	case in.ClearExpiry:
		if m.ExpiresAt != nil {
			m.ExpiresAt = nil
			changed = true
		}
	case in.ExpiresAt != nil:
		if m.ExpiresAt == nil || !m.ExpiresAt.Equal(*in.ExpiresAt) {
			t := in.ExpiresAt.UTC()
			m.ExpiresAt = &t
			changed = true
		}
	}
	return changed
}

// ChangeStatus はステータスのみを変更する。
func (s *Service) ChangeStatus(ctx context.Context, id, userID string, status model.MemoStatus) (*model.Memo, error) {
	return s.UpdateMemo(ctx, id, userID, UpdateInput{Status: &status})
}

// DeleteMemo はメモを物理削除する。削除した場合はtrue、存在しない場合はfalseを返す。
func (s *Service) DeleteMemo(ctx context.Context, id, userID string) (bool, error) {
	if userID == "" {
		return false, model.ErrUnauthenticated
	}

	deleted, err := s.memoRepo.Delete(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("メモの削除に失敗しました: %w", err)
	}
	if deleted {
		s.recordOperation("delete")
		slog.Info("メモを削除しました",
			slog.String("user_id", userID),
			slog.String("memo_id", id),
		)
	}
	return deleted, nil
}

func (s *Service) recordOperation(op string) {
	if s.metrics != nil {
		s.metrics.RecordMemoOperation(op)
	}
}

func (s *Service) recordPromotions(n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.RecordExpiryPromotions(n)
	}
}
