package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/token"
)

// sequenceGenerator は決められた順序でトークンを返すテスト用生成器。
type sequenceGenerator struct {
	mu     sync.Mutex
	tokens []string
	next   int
	err    error
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if g.next >= len(g.tokens) {
		return fmt.Sprintf("generated-%d", g.next), nil
	}
	tok := g.tokens[g.next]
	g.next++
	return tok, nil
}

var _ token.Generator = (*sequenceGenerator)(nil)

var testIdentity = model.Identity{
	UserID: "user-1",
	Email:  "alice@example.com",
	Name:   "alice",
	Role:   model.RoleMember,
}

func TestMemorySessionStore_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(token.NewGenerator())

	sess, err := store.Create(ctx, testIdentity, baseTime)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Token == "" {
		t.Fatal("session token should not be empty")
	}
	if !sess.ExpiresAt.Equal(baseTime.Add(model.SessionTTL)) {
		t.Errorf("ExpiresAt = %v, want CreatedAt+7d", sess.ExpiresAt)
	}

	got, err := store.Validate(ctx, sess.Token, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Identity != testIdentity {
		t.Errorf("Identity = %+v, want %+v", got.Identity, testIdentity)
	}
}

func TestMemorySessionStore_Create_Collision(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(&sequenceGenerator{tokens: []string{"same", "same"}})

	if _, err := store.Create(ctx, testIdentity, baseTime); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := store.Create(ctx, testIdentity, baseTime)
	if !errors.Is(err, model.ErrTokenCollision) {
		t.Errorf("second Create() error = %v, want ErrTokenCollision", err)
	}
}

func TestMemorySessionStore_Create_GeneratorFailure(t *testing.T) {
	store := NewMemorySessionStore(&sequenceGenerator{err: errors.New("entropy exhausted")})

	_, err := store.Create(context.Background(), testIdentity, baseTime)
	if err == nil {
		t.Fatal("expected error when generator fails")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemorySessionStore_Validate_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"6日23時間59分後は有効", 6*24*time.Hour + 23*time.Hour + 59*time.Minute, nil},
		{"7日1秒後は期限切れ", 7*24*time.Hour + time.Second, model.ErrSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemorySessionStore(token.NewGenerator())
			sess, _ := store.Create(ctx, testIdentity, baseTime)

			_, err := store.Validate(ctx, sess.Token, baseTime.Add(tt.elapsed))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if store.Len() != 0 {
				t.Errorf("expired session should be dropped, Len() = %d", store.Len())
			}
		})
	}
}

func TestMemorySessionStore_Validate_Unknown(t *testing.T) {
	store := NewMemorySessionStore(token.NewGenerator())

	_, err := store.Validate(context.Background(), "missing", baseTime)
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Validate() error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore_Revoke_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(token.NewGenerator())
	sess, _ := store.Create(ctx, testIdentity, baseTime)

	if err := store.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("first Revoke() error = %v", err)
	}
	if err := store.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}

	_, err := store.Validate(ctx, sess.Token, baseTime)
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Validate() after revoke error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore_ReturnedSessionIsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(token.NewGenerator())
	sess, _ := store.Create(ctx, testIdentity, baseTime)

	sess.Identity.Role = model.RoleAdmin

	got, err := store.Validate(ctx, sess.Token, baseTime)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Identity.Role != model.RoleMember {
		t.Errorf("stored role changed to %q", got.Identity.Role)
	}
}

func TestMemorySessionStore_ConcurrentValidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(token.NewGenerator())
	sess, _ := store.Create(ctx, testIdentity, baseTime)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Validate(ctx, sess.Token, baseTime.Add(time.Minute)); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestMemorySessionStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(token.NewGenerator())

	_, _ = store.Create(ctx, testIdentity, baseTime.Add(-8*24*time.Hour))
	live, _ := store.Create(ctx, testIdentity, baseTime)

	removed, err := store.Sweep(ctx, baseTime)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.Validate(ctx, live.Token, baseTime); err != nil {
		t.Errorf("live session should survive sweep: %v", err)
	}
}
