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
	Category string // カテゴリ: auth, validation, delivery, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrLinkExpired) の形で判定できるようにする。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeDeliveryFailed    = "DELIVERY_FAILED"
	ErrCodeLinkNotFound      = "LINK_NOT_FOUND"
	ErrCodeLinkExpired       = "LINK_EXPIRED"
	ErrCodeLinkAlreadyUsed   = "LINK_ALREADY_USED"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeSessionExpired    = "SESSION_EXPIRED"
	ErrCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// 認証フローの終端エラー。ストアとサービスはこれらをそのまま返す。
var (
	ErrInvalidEmail    = NewInvalidEmailError()
	ErrDeliveryFailed  = NewDeliveryFailedError()
	ErrLinkNotFound    = NewLinkNotFoundError()
	ErrLinkExpired     = NewLinkExpiredError()
	ErrLinkAlreadyUsed = NewLinkAlreadyUsedError()
	ErrSessionNotFound = NewSessionNotFoundError()
	ErrSessionExpired  = NewSessionExpiredError()
	ErrAccountNotFound = NewAccountNotFoundError()
)

// ErrTokenCollision はトークン生成器が既存トークンと同じ値を返したことを表す。
// 乱数源の故障を意味するため、ユーザー向けエラーではなく内部エラーとして扱う。
var ErrTokenCollision = errors.New("token collision: random source is broken")

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewDeliveryFailedError はログインリンクの送信失敗エラーを生成する。
func NewDeliveryFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDeliveryFailed,
		Message:  "ログインリンクのメール送信に失敗しました。",
		Category: "delivery",
		Action:   "しばらく待ってから再度ログインリンクを要求してください。",
	}
}

// NewLinkNotFoundError はログインリンク未検出エラーを生成する。
func NewLinkNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkNotFound,
		Message:  "ログインリンクが見つかりません。",
		Category: "auth",
		Action:   "メールに記載されたリンクをそのまま開くか、新しいリンクを要求してください。",
	}
}

// NewLinkExpiredError はログインリンク期限切れエラーを生成する。
func NewLinkExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkExpired,
		Message:  "ログインリンクの有効期限（10分）が切れています。",
		Category: "auth",
		Action:   "新しいログインリンクを要求してください。",
	}
}

// NewLinkAlreadyUsedError はログインリンク使用済みエラーを生成する。
func NewLinkAlreadyUsedError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkAlreadyUsed,
		Message:  "このログインリンクは既に使用されています。",
		Category: "auth",
		Action:   "別のタブや端末で既にログインしていないか確認してください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "セッションが見つかりません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewAccountNotFoundError は自動プロビジョニング無効時の未登録アカウントエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "このメールアドレスに対応するアカウントが登録されていません。",
		Category: "auth",
		Action:   "管理者にアカウントの登録を依頼してください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
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

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "必要な権限について管理者に問い合わせてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
