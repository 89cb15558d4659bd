// Package auth はマジックリンクによるパスワードレス認証とセッション発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/linkgate/internal/metrics"
	"github.com/hitoshi/linkgate/internal/model"
	"github.com/hitoshi/linkgate/internal/repository"
	"github.com/hitoshi/linkgate/internal/token"
)

// Notifier はログインリンクをユーザーへ届ける配送手段のインターフェース。
type Notifier interface {
	Send(ctx context.Context, recipient, linkURL string, expiresAt time.Time) error
}

// Directory はメールアドレスからユーザー情報を解決するインターフェース。
type Directory interface {
	// Resolve はユーザーを取得し、存在しない場合は作成する。
	Resolve(ctx context.Context, email string) (*model.Identity, error)
	// Lookup はユーザーを取得する。見つからない場合はnilを返す。
	Lookup(ctx context.Context, email string) (*model.Identity, error)
}

// Recorder は認証イベントのメトリクスを記録するインターフェース。
type Recorder interface {
	RecordLinkIssued()
	RecordLinkVerification(outcome string)
	RecordSessionValidation(outcome string)
	RecordLogout()
}

// NameSanitizer は表示名を安全な文字列に変換するインターフェース。
type NameSanitizer interface {
	Sanitize(name string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	LinkBaseURL   string // ログインリンクのベースURL（例: https://dash.example.com/auth/verify）
	AutoProvision bool   // trueの場合、未登録のメールアドレスで初回ログイン時にユーザーを作成する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	links     repository.MagicLinkRepository
	sessions  repository.SessionRepository
	directory Directory
	notifier  Notifier
	generator token.Generator
	config    ServiceConfig

	recorder  Recorder
	sanitizer NameSanitizer
	now       func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNameSanitizer はセッションに埋め込む表示名のサニタイザーを設定する。
func WithNameSanitizer(n NameSanitizer) Option {
	return func(s *Service) { s.sanitizer = n }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService はServiceを生成する。
func NewService(
	links repository.MagicLinkRepository,
	sessions repository.SessionRepository,
	directory Directory,
	notifier Notifier,
	generator token.Generator,
	config ServiceConfig,
	opts ...Option,
) *Service {
	s := &Service{
		links:     links,
		sessions:  sessions,
		directory: directory,
		notifier:  notifier,
		generator: generator,
		config:    config,
		recorder:  nopRecorder{},
		sanitizer: passthroughSanitizer{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestLink はログインリンクを発行してメールで送信する。
// 送信はストアのロックを保持せずに行い、失敗した場合もトークンはPendingのまま残る。
func (s *Service) RequestLink(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return model.ErrInvalidEmail
	}

	tok, err := s.generator.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate link token: %w", err)
	}

	now := s.now()
	if err := s.links.Put(ctx, tok, normalized, now); err != nil {
		if errors.Is(err, model.ErrTokenCollision) {
			slog.Error("magic link token collision",
				slog.String("token", token.Fingerprint(tok)),
			)
		}
		return err
	}

	linkURL, err := BuildLinkURL(s.config.LinkBaseURL, tok)
	if err != nil {
		return err
	}

	expiresAt := now.Add(model.MagicLinkTTL)
	if err := s.notifier.Send(ctx, normalized, linkURL, expiresAt); err != nil {
		slog.Warn("magic link delivery failed",
			slog.String("email", normalized),
			slog.String("token", token.Fingerprint(tok)),
			slog.String("error", err.Error()),
		)
		return model.ErrDeliveryFailed
	}

	s.recorder.RecordLinkIssued()
	slog.Info("magic link issued",
		slog.String("email", normalized),
		slog.String("token", token.Fingerprint(tok)),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// VerifyLink はログインリンクを消費してセッションを発行する。
// ストアのエラー（未登録・期限切れ・使用済み）はそのまま返す。
func (s *Service) VerifyLink(ctx context.Context, tok string) (*model.Session, error) {
	email, err := s.links.TryConsume(ctx, tok, s.now())
	if err != nil {
		s.recorder.RecordLinkVerification(verificationOutcome(err))
		return nil, err
	}

	sess, err := s.openSession(ctx, email)
	if err != nil {
		s.recorder.RecordLinkVerification(verificationOutcome(err))
		return nil, err
	}

	s.recorder.RecordLinkVerification(metrics.OutcomeSuccess)
	slog.Info("magic link verified",
		slog.String("user_id", sess.UserID()),
		slog.String("token", token.Fingerprint(tok)),
	)
	return sess, nil
}

// IssueSession はリンクを経由せずにメールアドレスからセッションを直接発行する。
// 運用ツールなど、別の手段で本人確認を済ませた経路から使用する。
func (s *Service) IssueSession(ctx context.Context, email string) (*model.Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, model.ErrInvalidEmail
	}

	sess, err := s.openSession(ctx, normalized)
	if err != nil {
		return nil, err
	}

	slog.Info("session issued directly",
		slog.String("user_id", sess.UserID()),
	)
	return sess, nil
}

// ValidateSession はセッショントークンを検証する。
func (s *Service) ValidateSession(ctx context.Context, tok string) (*model.Session, error) {
	sess, err := s.sessions.Validate(ctx, tok, s.now())
	s.recorder.RecordSessionValidation(sessionOutcome(err))
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout はセッションを破棄する。呼び出し側には常に成功を返す。
func (s *Service) Logout(ctx context.Context, tok string) error {
	if err := s.sessions.Revoke(ctx, tok); err != nil {
		slog.Error("failed to revoke session",
			slog.String("token", token.Fingerprint(tok)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.recorder.RecordLogout()
	return nil
}

// openSession はディレクトリでユーザーを解決し、スナップショットを持つセッションを作成する。
func (s *Service) openSession(ctx context.Context, email string) (*model.Session, error) {
	identity, err := s.resolveIdentity(ctx, email)
	if err != nil {
		return nil, err
	}
	identity.Name = s.sanitizer.Sanitize(identity.Name)

	sess, err := s.sessions.Create(ctx, *identity, s.now())
	if err != nil {
		if errors.Is(err, model.ErrTokenCollision) {
			slog.Error("session token collision",
				slog.String("user_id", identity.UserID),
			)
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) resolveIdentity(ctx context.Context, email string) (*model.Identity, error) {
	if s.config.AutoProvision {
		identity, err := s.directory.Resolve(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve identity: %w", err)
		}
		return identity, nil
	}

	identity, err := s.directory.Lookup(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	if identity == nil {
		slog.Warn("login attempted for unregistered account",
			slog.String("email", email),
		)
		return nil, model.ErrAccountNotFound
	}
	return identity, nil
}

// BuildLinkURL はベースURLにtokenクエリを付与したログインリンクを組み立てる。
func BuildLinkURL(base, tok string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid link base URL: %w", err)
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func verificationOutcome(err error) string {
	switch {
	case errors.Is(err, model.ErrLinkNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, model.ErrLinkExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, model.ErrLinkAlreadyUsed):
		return metrics.OutcomeAlreadyUsed
	case errors.Is(err, model.ErrAccountNotFound):
		return metrics.OutcomeAccountNotFound
	default:
		return metrics.OutcomeError
	}
}

func sessionOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, model.ErrSessionNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, model.ErrSessionExpired):
		return metrics.OutcomeExpired
	default:
		return metrics.OutcomeError
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordLinkIssued() {}
func (nopRecorder) RecordLinkVerification(string) {}
func (nopRecorder) RecordSessionValidation(string) {}
func (nopRecorder) RecordLogout() {}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(name string) string { return name }
