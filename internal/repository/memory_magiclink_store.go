package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
)

// MemoryMagicLinkStore はプロセス内メモリでログインリンクを保持するストア。
// 検査と状態遷移は単一のミューテックスで保護し、トークン単位のロックは持たない。
type MemoryMagicLinkStore struct {
	mu     sync.Mutex
	tokens map[string]*model.MagicLinkToken
}

// NewMemoryMagicLinkStore は空のMemoryMagicLinkStoreを生成する。
func NewMemoryMagicLinkStore() *MemoryMagicLinkStore {
	return &MemoryMagicLinkStore{
		tokens: make(map[string]*model.MagicLinkToken),
	}
}

// Put は新しいPendingトークンを登録する。
func (s *MemoryMagicLinkStore) Put(_ context.Context, token, email string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token]; exists {
		return model.ErrTokenCollision
	}
	s.tokens[token] = model.NewMagicLinkToken(token, email, now)
	return nil
}

// TryConsume はトークンを原子的にUsedへ遷移させる。
// 判定順は 未登録 → 期限切れ（エントリ削除） → 使用済み。
func (s *MemoryMagicLinkStore) TryConsume(_ context.Context, token string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return "", model.ErrLinkNotFound
	}
	if t.IsExpired(now) {
		delete(s.tokens, token)
		return "", model.ErrLinkExpired
	}
	if t.State == model.LinkStateUsed {
		return "", model.ErrLinkAlreadyUsed
	}

	usedAt := now
	t.State = model.LinkStateUsed
	t.UsedAt = &usedAt
	return t.Email, nil
}

// Get はトークンのコピーを返す。
func (s *MemoryMagicLinkStore) Get(_ context.Context, token string, now time.Time) (*model.MagicLinkToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, model.ErrLinkNotFound
	}
	if t.IsExpired(now) {
		delete(s.tokens, token)
		return nil, model.ErrLinkExpired
	}

	cp := *t
	if t.UsedAt != nil {
		usedAt := *t.UsedAt
		cp.UsedAt = &usedAt
	}
	return &cp, nil
}

// Sweep は削除可能なトークンを取り除き、削除件数を返す。
func (s *MemoryMagicLinkStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, t := range s.tokens {
		if t.Reclaimable(now) {
			delete(s.tokens, key)
			removed++
		}
	}
	return removed, nil
}

// Len は保持しているトークン数を返す。
func (s *MemoryMagicLinkStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// compile-time interface check
var _ MagicLinkRepository = (*MemoryMagicLinkStore)(nil)
