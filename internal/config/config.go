package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/linkgate/internal/auth"
)

// ストアのバックエンド
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ログインリンクの配送手段
const (
	NotifierLog     = "log"
	NotifierWebhook = "webhook"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Magic link
	MagicLinkPath string

	// Store
	StoreBackend string
	DatabaseURL  string

	// Directory
	AutoProvision bool
	AdminEmails   []string
	DefaultRole   string

	// Notifier
	Notifier             string
	NotifierWebhookURL   string
	NotifierWebhookToken string
	NotifierAllowPrivate bool
	NotifyTimeout        time.Duration

	// Sweep
	SweepInterval time.Duration

	// Rate Limit
	RateLimitIP    int // クライアントIPごとのreq/min
	RateLimitEmail int // メールアドレスごとの10分あたりのリンク要求数

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MagicLinkPath = getEnvString("MAGIC_LINK_PATH", "/auth/verify")
	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendMemory))
	cfg.AutoProvision = getEnvBool("AUTH_AUTO_PROVISION", true)
	cfg.AdminEmails = getEnvList("ADMIN_EMAILS")
	cfg.DefaultRole = getEnvString("DEFAULT_ROLE", "member")
	cfg.Notifier = strings.ToLower(getEnvString("NOTIFIER", NotifierLog))
	cfg.NotifierWebhookToken = os.Getenv("NOTIFIER_WEBHOOK_TOKEN")
	cfg.NotifierAllowPrivate = getEnvBool("NOTIFIER_ALLOW_PRIVATE", false)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Minute)
	cfg.RateLimitIP = getEnvInt("RATE_LIMIT_IP", 30)
	cfg.RateLimitEmail = getEnvInt("RATE_LIMIT_EMAIL", 3)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// Required fields
	var missing []string

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.NotifierWebhookURL = os.Getenv("NOTIFIER_WEBHOOK_URL")
	if cfg.Notifier == NotifierWebhook && cfg.NotifierWebhookURL == "" {
		missing = append(missing, "NOTIFIER_WEBHOOK_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// ログイン時のアドレスと同じ正規形にそろえる
	admins, err := normalizeEmails(cfg.AdminEmails)
	if err != nil {
		return nil, err
	}
	cfg.AdminEmails = admins

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.StoreBackend)
	}

	switch c.Notifier {
	case NotifierLog, NotifierWebhook:
	default:
		return fmt.Errorf("NOTIFIER must be %q or %q, got %q", NotifierLog, NotifierWebhook, c.Notifier)
	}

	switch c.DefaultRole {
	case "admin", "member", "viewer":
	default:
		return fmt.Errorf("DEFAULT_ROLE must be one of admin, member, viewer, got %q", c.DefaultRole)
	}

	if !strings.HasPrefix(c.MagicLinkPath, "/") {
		return fmt.Errorf("MAGIC_LINK_PATH must start with '/', got %q", c.MagicLinkPath)
	}
	if c.RateLimitIP <= 0 || c.RateLimitEmail <= 0 {
		return fmt.Errorf("RATE_LIMIT_IP and RATE_LIMIT_EMAIL must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", c.SweepInterval)
	}
	return nil
}

// LinkBaseURL はログインリンクのベースURL（BASE_URL + MAGIC_LINK_PATH）を返す。
func (c *Config) LinkBaseURL() string {
	return c.BaseURL + c.MagicLinkPath
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// normalizeEmails はADMIN_EMAILSの各アドレスをauth.NormalizeEmailで正規化する。
func normalizeEmails(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		normalized, err := auth.NormalizeEmail(e)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_EMAILS contains an invalid address %q: %w", e, err)
		}
		out = append(out, normalized)
	}
	return out, nil
}

// getEnvList はカンマ区切りの値を空白除去して返す。空要素は捨てる。
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
