package model

import "time"

// SessionTTL はセッションの有効期間（固定ポリシー）。
const SessionTTL = 7 * 24 * time.Hour

// Session はユーザーのログインセッションを表す。
// Identityは作成時点のスナップショットで、セッションの存続中は変更しない。
type Session struct {
	Token     string
	Identity  Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession は作成時刻nowのセッションを生成する。
func NewSession(token string, identity Identity, now time.Time) *Session {
	return &Session{
		Token:     token,
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
}

// IsExpired はnowがExpiresAtを過ぎているかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UserID はセッションに紐づくユーザーIDを返す。
func (s *Session) UserID() string {
	return s.Identity.UserID
}
