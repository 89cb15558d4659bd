package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/token"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// ユーザー情報はセッション作成時のスナップショットをカラムにコピーして保持する。
type PostgresSessionRepo struct {
	db        *sql.DB
	generator token.Generator
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB, generator token.Generator) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, generator: generator}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, identity model.Identity, now time.Time) (*model.Session, error) {
	tok, err := r.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	sess := model.NewSession(tok, identity, now)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, email, name, role, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.Hash(tok), identity.UserID, identity.Email, identity.Name, identity.Role,
		sess.CreatedAt, sess.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return nil, model.ErrTokenCollision
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Validate は有効なセッションを返す。期限切れの場合は削除してErrSessionExpiredを返す。
func (r *PostgresSessionRepo) Validate(ctx context.Context, tok string, now time.Time) (*model.Session, error) {
	hash := token.Hash(tok)

	sess := &model.Session{Token: tok}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, email, name, role, created_at, expires_at
		 FROM sessions WHERE token_hash = $1`,
		hash,
	).Scan(
		&sess.Identity.UserID, &sess.Identity.Email, &sess.Identity.Name, &sess.Identity.Role,
		&sess.CreatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if sess.IsExpired(now) {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hash); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, model.ErrSessionExpired
	}
	return sess, nil
}

// Revoke はセッションを削除する。存在しない場合もエラーにしない。
func (r *PostgresSessionRepo) Revoke(ctx context.Context, tok string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`,
		token.Hash(tok),
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Sweep は期限切れセッションを削除する。
func (r *PostgresSessionRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
