package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/linkgate/internal/middleware"
	"github.com/hitoshi/linkgate/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	AuthService      AuthServiceInterface
	SessionValidator middleware.SessionValidator
	AuthConfig       AuthHandlerConfig

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter   // nilの場合はレート制限を行わない
	StatusRecorder    middleware.StatusRecorder // nilの場合はステータスを記録しない

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → Metrics
//
// /api/auth/* と /auth/verify はさらに no-store を付与し、クライアントIP単位で制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	var emailLimiter EmailLimiter
	if deps.RateLimiter != nil {
		emailLimiter = deps.RateLimiter
	}
	authHandler := NewAuthHandler(deps.AuthService, emailLimiter, deps.AuthConfig)
	profileHandler := NewProfileHandler()

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---

	// メール内リンクからのブラウザ遷移。/api/auth/verifyと同じくIP単位で制限する
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewNoStoreMiddleware())
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.IPMiddleware())
		}

		r.Get("/auth/verify", authHandler.VerifyMagicLinkRedirect)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.NewNoStoreMiddleware())
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.IPMiddleware())
		}

		r.Post("/magic-link", authHandler.RequestMagicLink)
		r.Post("/verify", authHandler.VerifyMagicLink)
		r.Get("/session", authHandler.Session)
		r.Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))

		r.Get("/api/me", profileHandler.Me)
		r.With(middleware.RequireRole(model.RoleAdmin)).Get("/api/admin/ping", profileHandler.AdminPing)
	})

	return r
}
