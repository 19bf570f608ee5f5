package model

import "time"

// User はサービス利用ユーザーを表す。
// (OAuthProvider, OAuthUserID) が自然キーで、作成後は変更しない。
type User struct {
	ID            string
	OAuthProvider string
	OAuthUserID   string
	Name          string
	Email         string
	AvatarURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserProfile はIdPから取得したプロフィール情報を表す。
// 空文字は「IdPが値を返さなかった」ことを意味する。
type UserProfile struct {
	Provider       string
	ProviderUserID string
	Name           string
	Email          string
	AvatarURL      string
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired はセッションの有効期限が切れているかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
