// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, memo, system
	Action   string // ユーザー向け対処方法
	Details  map[string]string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeMemoNotFound      = "MEMO_NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeUnknownProvider   = "UNKNOWN_PROVIDER"
)

// ErrUnauthenticated は認証済みの所有者なしで操作しようとしたことを表す。
var ErrUnauthenticated = errors.New("authentication required")

// ValidationError はメモの入力値が制約を満たさないことを表す。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError は遷移表で許可されていない状態変更を表す。
type InvalidTransitionError struct {
	From MemoStatus
	To   MemoStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// NewValidationAPIError は入力検証エラーを生成する。
func NewValidationAPIError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません (%s): %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewInvalidTransitionAPIError は状態遷移エラーを生成する。
func NewInvalidTransitionAPIError(from, to MemoStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("ステータスを %s から %s に変更できません。", from, to),
		Category: "memo",
		Action:   "許可されているステータスを選択してください。",
		Details:  map[string]string{"from": string(from), "to": string(to)},
	}
}

// NewMemoNotFoundError はメモ未検出エラーを生成する。
func NewMemoNotFoundError(memoID string) *APIError {
	return &APIError{
		Code:     ErrCodeMemoNotFound,
		Message:  fmt.Sprintf("指定されたメモが見つかりません: %s", memoID),
		Category: "memo",
		Action:   "メモIDを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewUnknownProviderError は未設定のIdPが指定されたエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("ログインプロバイダが利用できません: %s", provider),
		Category: "auth",
		Action:   "別のログイン方法を選択してください。",
	}
}
