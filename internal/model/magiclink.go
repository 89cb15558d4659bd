package model

import "time"

const (
	// MagicLinkTTL はログインリンクの有効期間（固定ポリシー）。
	MagicLinkTTL = 10 * time.Minute
	// UsedLinkRetention は使用済みリンクを保持する猶予時間。
	// 重複・再送された検証リクエストにLINK_ALREADY_USEDを返すために残す。
	UsedLinkRetention = 60 * time.Second
)

// LinkState はログインリンクの状態を表す。
// 期限切れは状態として保存せず、常にExpiresAtと現在時刻の比較で判定する。
type LinkState string

const (
	LinkStatePending LinkState = "pending"
	LinkStateUsed    LinkState = "used"
)

// MagicLinkToken は発行済みのログインリンクを表す。
type MagicLinkToken struct {
	Token     string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	State     LinkState
	UsedAt    *time.Time
}

// NewMagicLinkToken は発行時刻nowのPendingトークンを生成する。
func NewMagicLinkToken(token, email string, now time.Time) *MagicLinkToken {
	return &MagicLinkToken{
		Token:     token,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(MagicLinkTTL),
		State:     LinkStatePending,
	}
}

// IsExpired はnowがExpiresAtを過ぎているかを返す。ExpiresAtちょうどは有効。
func (t *MagicLinkToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Reclaimable はスイープで削除してよいかを返す。
// 未使用で期限切れのもの、または使用から猶予時間を過ぎたものが対象。
func (t *MagicLinkToken) Reclaimable(now time.Time) bool {
	if t.State == LinkStateUsed {
		return t.UsedAt != nil && now.Sub(*t.UsedAt) > UsedLinkRetention
	}
	return t.IsExpired(now)
}
