package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/repository"
	"github.com/hitoshi/linkgate/internal/token"
)

type mockStore struct {
	mu     sync.Mutex
	calls  int
	lastAt time.Time
	n      int
	err    error
}

var _ repository.Sweepable = (*mockStore)(nil)

func (m *mockStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastAt = now
	return m.n, m.err
}

func (m *mockStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	mu    sync.Mutex
	swept map[string]int
}

func (m *mockRecorder) RecordSwept(store string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.swept == nil {
		m.swept = make(map[string]int)
	}
	m.swept[store] += count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestSweeper_Run_SweepsAllTargets(t *testing.T) {
	var buf bytes.Buffer
	links := &mockStore{n: 3}
	sessions := &mockStore{n: 2}
	recorder := &mockRecorder{}

	s := NewSweeper(newTestLogger(&buf), recorder,
		Target{Name: "magic_links", Store: links},
		Target{Name: "sessions", Store: sessions},
	)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if links.calls != 1 || sessions.calls != 1 {
		t.Errorf("calls = (%d, %d), want (1, 1)", links.calls, sessions.calls)
	}
	if !links.lastAt.Equal(fixed) || !sessions.lastAt.Equal(fixed) {
		t.Error("stores should be swept with the same timestamp")
	}
	if recorder.swept["magic_links"] != 3 || recorder.swept["sessions"] != 2 {
		t.Errorf("recorded = %v", recorder.swept)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if count := entry["deleted_count"].(float64); count != 5 {
		t.Errorf("deleted_count = %v, want 5", count)
	}
}

func TestSweeper_Run_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	failing := &mockStore{err: errors.New("db unavailable")}
	healthy := &mockStore{n: 1}
	recorder := &mockRecorder{}

	s := NewSweeper(newTestLogger(&buf), recorder,
		Target{Name: "magic_links", Store: failing},
		Target{Name: "sessions", Store: healthy},
	)

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "magic_links") {
		t.Errorf("error %q should name the failing store", err)
	}
	if healthy.calls != 1 {
		t.Error("healthy store should still be swept")
	}
	if _, ok := recorder.swept["magic_links"]; ok {
		t.Error("failed sweep should not be recorded")
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Error("expected an ERROR log entry")
	}
}

func TestSweeper_Run_NilRecorder(t *testing.T) {
	var buf bytes.Buffer
	s := NewSweeper(newTestLogger(&buf), nil, Target{Name: "sessions", Store: &mockStore{n: 4}})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestSweeper_Run_MemoryStores(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	links := repository.NewMemoryMagicLinkStore()
	sessions := repository.NewMemorySessionStore(token.NewGenerator())

	if err := links.Put(ctx, "expired-link", "a@example.com", base); err != nil {
		t.Fatal(err)
	}
	if err := links.Put(ctx, "fresh-link", "b@example.com", base.Add(model.SessionTTL)); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Create(ctx, model.Identity{UserID: "u1", Email: "a@example.com", Role: model.RoleMember}, base); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(newTestLogger(&buf), nil,
		Target{Name: "magic_links", Store: links},
		Target{Name: "sessions", Store: sessions},
	)
	s.now = func() time.Time { return base.Add(model.SessionTTL + time.Minute) }

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := links.Len(); got != 1 {
		t.Errorf("links remaining = %d, want 1", got)
	}
	if got := sessions.Len(); got != 0 {
		t.Errorf("sessions remaining = %d, want 0", got)
	}
}

func TestSweeper_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf syncBuffer
	store := &mockStore{}
	s := NewSweeper(slog.New(slog.NewJSONHandler(&buf, nil)), nil, Target{Name: "sessions", Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweep calls = %d, want >= 2", store.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

// syncBuffer はゴルーチンから並行に書き込まれるログ出力先。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
