package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/linkgate/internal/model"
)

// MemoryDirectory はプロセス内メモリのユーザーディレクトリ。
type MemoryDirectory struct {
	mu     sync.Mutex
	users  map[string]*model.User
	policy RolePolicy
	now    func() time.Time
}

// NewMemoryDirectory はMemoryDirectoryを生成する。
func NewMemoryDirectory(policy RolePolicy) *MemoryDirectory {
	return &MemoryDirectory{
		users:  make(map[string]*model.User),
		policy: policy,
		now:    time.Now,
	}
}

// Add はユーザーを事前登録する。同じメールアドレスが既にあれば上書きする。
func (d *MemoryDirectory) Add(user *model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u := *user
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	d.users[u.Email] = &u
}

// Resolve はユーザーを取得し、存在しない場合は作成する。
func (d *MemoryDirectory) Resolve(_ context.Context, email string) (*model.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[email]; ok {
		id := u.Identity()
		return &id, nil
	}

	now := d.now()
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      displayNameFromEmail(email),
		Role:      d.policy.RoleFor(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.users[email] = u

	id := u.Identity()
	return &id, nil
}

// Lookup はユーザーを取得する。見つからない場合はnilを返す。
func (d *MemoryDirectory) Lookup(_ context.Context, email string) (*model.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[email]
	if !ok {
		return nil, nil
	}
	id := u.Identity()
	return &id, nil
}

// compile-time interface check
var _ UserDirectory = (*MemoryDirectory)(nil)
