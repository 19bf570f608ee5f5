package model

import (
	"time"
	"unicode/utf8"
)

// メモの入力制約
const (
	MemoTitleMaxLength   = 200
	MemoContentMaxLength = 10000
)

// Memo はユーザーが所有するメモを表す。
type Memo struct {
	ID          string
	UserID      string
	Title       string
	Content     string
	Status      MemoStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time // 初めてcompletedになった時刻。以後クリアしない
	ExpiresAt   *time.Time // nilは無期限
}

// MemoPage はメモ一覧の1ページを表す。
type MemoPage struct {
	Items    []*Memo
	Page     int
	PageSize int
	Total    int
	// Promoted はこのページの取得時にexpiredへ昇格したメモの件数。
	Promoted int
}

// TotalPages は総ページ数を返す。
func (p *MemoPage) TotalPages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// HasNext は次ページが存在するかを返す。
func (p *MemoPage) HasNext() bool {
	return p.Page < p.TotalPages()
}

// HasPrev は前ページが存在するかを返す。
func (p *MemoPage) HasPrev() bool {
	return p.Page > 1
}

// Validate はタイトル・本文・状態の制約を検証する。
func (m *Memo) Validate() error {
	titleLen := utf8.RuneCountInString(m.Title)
	if titleLen == 0 {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if titleLen > MemoTitleMaxLength {
		return &ValidationError{Field: "title", Reason: "too long"}
	}
	contentLen := utf8.RuneCountInString(m.Content)
	if contentLen == 0 {
		return &ValidationError{Field: "content", Reason: "required"}
	}
	if contentLen > MemoContentMaxLength {
		return &ValidationError{Field: "content", Reason: "too long"}
	}
	if !m.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "unknown status"}
	}
	return nil
}

// CanChangeStatus は現在の状態からtoへ遷移可能かを返す。
func (m *Memo) CanChangeStatus(to MemoStatus) bool {
	return CanTransition(m.Status, to)
}

// IsExpired は期限が設定されていてnowが期限を過ぎているかを返す。状態には依存しない。
func (m *Memo) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// CheckAndPromoteExpiry は期限切れのメモをexpiredへ昇格させる。
// closedとexpiredは対象外。昇格した場合はtrueを返し、呼び出し側で永続化する。
func (m *Memo) CheckAndPromoteExpiry(now time.Time) bool {
	if m.Status == MemoStatusExpired || m.Status == MemoStatusClosed {
		return false
	}
	if !m.IsExpired(now) {
		return false
	}
	m.Status = MemoStatusExpired
	m.UpdatedAt = now
	return true
}

// ChangeStatus は遷移表に従って状態を変更する。
// 現在と同じ状態の指定は何もしない。completedへの初回遷移でCompletedAtを記録する。
func (m *Memo) ChangeStatus(to MemoStatus, now time.Time) error {
	if to == m.Status {
		return nil
	}
	if !m.CanChangeStatus(to) {
		return &InvalidTransitionError{From: m.Status, To: to}
	}
	m.Status = to
	if to == MemoStatusCompleted {
		m.markCompleted(now)
	}
	m.UpdatedAt = now
	return nil
}

func (m *Memo) markCompleted(now time.Time) {
	if m.CompletedAt == nil {
		t := now
		m.CompletedAt = &t
	}
}

// NewMemo は新規メモを生成する。completedで作成した場合はCompletedAtも設定する。
func NewMemo(id, userID, title, content string, status MemoStatus, expiresAt *time.Time, now time.Time) *Memo {
	if status == "" {
		status = MemoStatusPending
	}
	m := &Memo{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Content:   content,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}
	if status == MemoStatusCompleted {
		m.markCompleted(now)
	}
	return m
}
