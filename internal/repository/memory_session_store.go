package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/token"
)

// MemorySessionStore はプロセス内メモリでセッションを保持するストア。
// Validateは高頻度で呼ばれるため読み取りロックで処理し、
// 期限切れエントリの削除時のみ書き込みロックを取る。
type MemorySessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*model.Session
	generator token.Generator
}

// NewMemorySessionStore はMemorySessionStoreを生成する。
func NewMemorySessionStore(generator token.Generator) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:  make(map[string]*model.Session),
		generator: generator,
	}
}

// Create はセッショントークンを生成してセッションを登録する。
func (s *MemorySessionStore) Create(_ context.Context, identity model.Identity, now time.Time) (*model.Session, error) {
	tok, err := s.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[tok]; exists {
		return nil, model.ErrTokenCollision
	}
	sess := model.NewSession(tok, identity, now)
	s.sessions[tok] = sess

	cp := *sess
	return &cp, nil
}

// Validate は有効なセッションのコピーを返す。
func (s *MemorySessionStore) Validate(_ context.Context, tok string, now time.Time) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[tok]
	if !ok {
		s.mu.RUnlock()
		return nil, model.ErrSessionNotFound
	}
	if !sess.IsExpired(now) {
		cp := *sess
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	// 期限切れ: 書き込みロックで再確認してから削除する
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok = s.sessions[tok]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if sess.IsExpired(now) {
		delete(s.sessions, tok)
		return nil, model.ErrSessionExpired
	}
	cp := *sess
	return &cp, nil
}

// Revoke はセッションを削除する。
func (s *MemorySessionStore) Revoke(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tok)
	return nil
}

// Sweep は期限切れセッションを削除し、削除件数を返す。
func (s *MemorySessionStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Len は保持しているセッション数を返す。
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionStore)(nil)
