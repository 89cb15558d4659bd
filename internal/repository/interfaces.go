// Package repository はログインリンク・セッション・ユーザーディレクトリの永続化を提供する。
// インメモリ実装とPostgreSQL実装があり、どちらも同じインターフェースを満たす。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
)

// MagicLinkRepository はログインリンクの永続化インターフェース。
// 有効期限の判定は呼び出し側から渡されたnowで行う。
type MagicLinkRepository interface {
	// Put は新しいPendingトークンを登録する。
	// 同じトークンが既に存在する場合はmodel.ErrTokenCollisionを返す。
	Put(ctx context.Context, token, email string, now time.Time) error

	// TryConsume はトークンをPendingからUsedへ原子的に遷移させ、紐づくメールアドレスを返す。
	// 並行して呼ばれた場合、成功するのは1回だけで、それ以外はErrLinkAlreadyUsedになる。
	TryConsume(ctx context.Context, token string, now time.Time) (string, error)

	// Get はトークンを変更せずに取得する。期限切れのものはErrLinkExpiredを返して削除する。
	Get(ctx context.Context, token string, now time.Time) (*model.MagicLinkToken, error)

	// Sweep は期限切れの未使用トークンと、猶予時間を過ぎた使用済みトークンを削除する。
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// SessionRepository はセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はidentityのスナップショットを持つセッションを作成する。
	Create(ctx context.Context, identity model.Identity, now time.Time) (*model.Session, error)

	// Validate は有効なセッションのコピーを返す。
	// 存在しない場合はErrSessionNotFound、期限切れの場合はErrSessionExpiredを返す。
	Validate(ctx context.Context, token string, now time.Time) (*model.Session, error)

	// Revoke はセッションを削除する。存在しないトークンでもエラーにしない。
	Revoke(ctx context.Context, token string) error

	// Sweep は期限切れのセッションを削除する。
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// UserDirectory はメールアドレスからユーザーを解決するインターフェース。
type UserDirectory interface {
	// Resolve はユーザーを取得し、存在しない場合は作成する。
	Resolve(ctx context.Context, email string) (*model.Identity, error)

	// Lookup はユーザーを取得する。見つからない場合はnilを返す。
	Lookup(ctx context.Context, email string) (*model.Identity, error)
}

// Sweepable は期限切れデータを削除できるストア。
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
