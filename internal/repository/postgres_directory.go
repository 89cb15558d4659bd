package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkgate/internal/model"
)

// PostgresDirectory はPostgreSQLのusersテーブルを使用したユーザーディレクトリ。
type PostgresDirectory struct {
	db     *sql.DB
	policy RolePolicy
	now    func() time.Time
}

// NewPostgresDirectory はPostgresDirectoryを生成する。
func NewPostgresDirectory(db *sql.DB, policy RolePolicy) *PostgresDirectory {
	return &PostgresDirectory{db: db, policy: policy, now: time.Now}
}

// Resolve はユーザーを取得し、存在しない場合は作成する。
// 同じメールアドレスで同時に呼ばれても、ON CONFLICTにより作成は1件に収まる。
func (d *PostgresDirectory) Resolve(ctx context.Context, email string) (*model.Identity, error) {
	now := d.now()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (email) DO NOTHING`,
		uuid.New().String(), email, displayNameFromEmail(email), d.policy.RoleFor(email), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	user, err := d.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user disappeared after provisioning: %s", email)
	}
	id := user.Identity()
	return &id, nil
}

// Lookup はユーザーを取得する。見つからない場合はnilを返す。
func (d *PostgresDirectory) Lookup(ctx context.Context, email string) (*model.Identity, error) {
	user, err := d.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	id := user.Identity()
	return &id, nil
}

func (d *PostgresDirectory) findByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, created_at, updated_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserDirectory = (*PostgresDirectory)(nil)
