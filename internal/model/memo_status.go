package model

import "fmt"

// MemoStatus はメモのライフサイクル状態を表す。
type MemoStatus string

// メモの状態
const (
	MemoStatusPending    MemoStatus = "pending"
	MemoStatusInProgress MemoStatus = "in_progress"
	MemoStatusCompleted  MemoStatus = "completed"
	MemoStatusClosed     MemoStatus = "closed"
	MemoStatusExpired    MemoStatus = "expired"
)

// MemoStatuses は定義済みの全状態を表示順で返す。
func MemoStatuses() []MemoStatus {
	return []MemoStatus{
		MemoStatusPending,
		MemoStatusInProgress,
		MemoStatusCompleted,
		MemoStatusClosed,
		MemoStatusExpired,
	}
}

// memoTransitions は状態遷移表。遷移の可否はこの表だけで決まる。
var memoTransitions = map[MemoStatus][]MemoStatus{
	MemoStatusPending:    {MemoStatusInProgress, MemoStatusClosed},
	MemoStatusInProgress: {MemoStatusCompleted, MemoStatusClosed},
	MemoStatusCompleted:  {MemoStatusClosed},
	MemoStatusClosed:     {},
	MemoStatusExpired:    {MemoStatusClosed},
}

// IsValid は定義済みの状態かどうかを返す。
func (s MemoStatus) IsValid() bool {
	_, ok := memoTransitions[s]
	return ok
}

// String はStringerを実装する。
func (s MemoStatus) String() string {
	return string(s)
}

// ParseMemoStatus は文字列を状態に変換する。未定義の値はValidationErrorになる。
func ParseMemoStatus(v string) (MemoStatus, error) {
	s := MemoStatus(v)
	if !s.IsValid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", v)}
	}
	return s, nil
}

// CanTransition はfromからtoへの遷移が許可されているかを返す。
// 自己遷移と表にない組み合わせは常にfalse。
func CanTransition(from, to MemoStatus) bool {
	for _, next := range memoTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions はfromから遷移可能な状態の一覧を返す。
func AllowedTransitions(from MemoStatus) []MemoStatus {
	next := memoTransitions[from]
	out := make([]MemoStatus, len(next))
	copy(out, next)
	return out
}
