package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/token"
)

// pgUniqueViolation はPostgreSQLの一意制約違反コード。
const pgUniqueViolation = "23505"

// PostgresMagicLinkRepo はPostgreSQLを使用したログインリンクリポジトリ。
// 生のトークンは保存せず、SHA-256ハッシュをキーにする。
type PostgresMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRepo はPostgresMagicLinkRepoを生成する。
func NewPostgresMagicLinkRepo(db *sql.DB) *PostgresMagicLinkRepo {
	return &PostgresMagicLinkRepo{db: db}
}

// Put は新しいPendingトークンを登録する。
func (r *PostgresMagicLinkRepo) Put(ctx context.Context, tok, email string, now time.Time) error {
	link := model.NewMagicLinkToken(tok, email, now)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (token_hash, email, state, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.Hash(tok), link.Email, string(link.State), link.IssuedAt, link.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return model.ErrTokenCollision
	}
	if err != nil {
		return fmt.Errorf("failed to insert magic link: %w", err)
	}
	return nil
}

// TryConsume はトークンを1つの条件付きUPDATEでUsedへ遷移させる。
// 更新できなかった場合のみ、現在の状態を読み直して失敗理由を判定する。
func (r *PostgresMagicLinkRepo) TryConsume(ctx context.Context, tok string, now time.Time) (string, error) {
	hash := token.Hash(tok)

	var email string
	err := r.db.QueryRowContext(ctx,
		`UPDATE magic_links
		 SET state = 'used', used_at = $2
		 WHERE token_hash = $1 AND state = 'pending' AND expires_at >= $2
		 RETURNING email`,
		hash, now,
	).Scan(&email)
	if err == nil {
		return email, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to consume magic link: %w", err)
	}

	link, err := r.find(ctx, hash)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", model.ErrLinkNotFound
	}
	if link.IsExpired(now) {
		if err := r.delete(ctx, hash); err != nil {
			return "", err
		}
		return "", model.ErrLinkExpired
	}
	return "", model.ErrLinkAlreadyUsed
}

// Get はトークンを変更せずに取得する。
func (r *PostgresMagicLinkRepo) Get(ctx context.Context, tok string, now time.Time) (*model.MagicLinkToken, error) {
	hash := token.Hash(tok)

	link, err := r.find(ctx, hash)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, model.ErrLinkNotFound
	}
	if link.IsExpired(now) {
		if err := r.delete(ctx, hash); err != nil {
			return nil, err
		}
		return nil, model.ErrLinkExpired
	}
	link.Token = tok
	return link, nil
}

// Sweep は期限切れの未使用トークンと猶予時間を過ぎた使用済みトークンを削除する。
func (r *PostgresMagicLinkRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM magic_links
		 WHERE (state = 'pending' AND expires_at < $1)
		    OR (state = 'used' AND used_at < $2)`,
		now, now.Add(-model.UsedLinkRetention),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep magic links: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *PostgresMagicLinkRepo) find(ctx context.Context, hash []byte) (*model.MagicLinkToken, error) {
	link := &model.MagicLinkToken{}
	var state string
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT email, state, issued_at, expires_at, used_at
		 FROM magic_links WHERE token_hash = $1`,
		hash,
	).Scan(&link.Email, &state, &link.IssuedAt, &link.ExpiresAt, &usedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find magic link: %w", err)
	}

	link.State = model.LinkState(state)
	if usedAt.Valid {
		t := usedAt.Time
		link.UsedAt = &t
	}
	return link, nil
}

func (r *PostgresMagicLinkRepo) delete(ctx context.Context, hash []byte) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM magic_links WHERE token_hash = $1`, hash); err != nil {
		return fmt.Errorf("failed to delete magic link: %w", err)
	}
	return nil
}

// isUniqueViolation はエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

// compile-time interface check
var _ MagicLinkRepository = (*PostgresMagicLinkRepo)(nil)
