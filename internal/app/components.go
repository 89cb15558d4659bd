package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hitoshi/linkgate/internal/auth"
	"github.com/hitoshi/linkgate/internal/config"
	"github.com/hitoshi/linkgate/internal/database"
	"github.com/hitoshi/linkgate/internal/middleware"
	"github.com/hitoshi/linkgate/internal/notify"
	"github.com/hitoshi/linkgate/internal/repository"
	"github.com/hitoshi/linkgate/internal/security"
	"github.com/hitoshi/linkgate/internal/token"
	"github.com/hitoshi/linkgate/internal/worker/sweep"
)

// stores は認証サービスが所有するストア群とディレクトリをまとめる。
// dbはpostgresバックエンドの場合のみ設定される。
type stores struct {
	links     repository.MagicLinkRepository
	sessions  repository.SessionRepository
	directory auth.Directory
	db        *sql.DB
}

// Close はDB接続を閉じる。メモリバックエンドでは何もしない。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sweepTargets はスイープ対象のストアを返す。
func (s *stores) sweepTargets() []sweep.Target {
	return []sweep.Target{
		{Name: "magic_links", Store: s.links},
		{Name: "sessions", Store: s.sessions},
	}
}

// openStores は設定されたバックエンドのストアを構築する。
func openStores(ctx context.Context, cfg *config.Config, generator token.Generator) (*stores, error) {
	policy := repository.RolePolicy{
		AdminEmails: cfg.AdminEmails,
		DefaultRole: cfg.DefaultRole,
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &stores{
			links:     repository.NewPostgresMagicLinkRepo(db),
			sessions:  repository.NewPostgresSessionRepo(db, generator),
			directory: repository.NewPostgresDirectory(db, policy),
			db:        db,
		}, nil
	case config.BackendMemory:
		return &stores{
			links:     repository.NewMemoryMagicLinkStore(),
			sessions:  repository.NewMemorySessionStore(generator),
			directory: repository.NewMemoryDirectory(policy),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.StoreBackend)
	}
}

// newNotifier は設定された配送手段のNotifierを構築し、メトリクス記録で包む。
func newNotifier(cfg *config.Config, logger *slog.Logger, recorder notify.DeliveryRecorder) (auth.Notifier, error) {
	var base notify.Sender

	switch cfg.Notifier {
	case config.NotifierWebhook:
		var client *http.Client
		if cfg.NotifierAllowPrivate {
			client = &http.Client{Timeout: cfg.NotifyTimeout}
		} else {
			guard := security.NewSSRFGuard()
			if err := guard.ValidateURL(cfg.NotifierWebhookURL); err != nil {
				return nil, fmt.Errorf("invalid NOTIFIER_WEBHOOK_URL: %w", err)
			}
			client = guard.NewSafeClient(cfg.NotifyTimeout)
		}
		base = notify.NewWebhookNotifier(client, logger, notify.WebhookConfig{
			Endpoint: cfg.NotifierWebhookURL,
			Token:    cfg.NotifierWebhookToken,
		})
	case config.NotifierLog:
		base = notify.NewLogNotifier(logger)
	default:
		return nil, fmt.Errorf("unsupported notifier: %q", cfg.Notifier)
	}

	return notify.NewInstrumentedNotifier(base, recorder), nil
}

// rateLimiterConfig は設定値（IPはreq/min、メールアドレスは10分あたりの回数）をトークンバケットに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.IPRate = rate.Limit(float64(cfg.RateLimitIP) / 60.0)
	rl.IPBurst = cfg.RateLimitIP
	rl.EmailRate = rate.Limit(float64(cfg.RateLimitEmail) / 600.0)
	rl.EmailBurst = cfg.RateLimitEmail
	return rl
}
