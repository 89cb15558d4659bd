package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/linkgate/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	IPRate          rate.Limit    // 認証APIのクライアントIPごとのレート（req/sec）
	IPBurst         int           // 認証APIのクライアントIPごとのバーストサイズ
	EmailRate       rate.Limit    // ログインリンク要求のメールアドレスごとのレート（req/sec）
	EmailBurst      int           // ログインリンク要求のメールアドレスごとのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// IPごとに30 req/min、メールアドレスごとに10分あたり3回。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		IPRate:          rate.Limit(30.0 / 60.0),
		IPBurst:         30,
		EmailRate:       rate.Limit(3.0 / 600.0),
		EmailBurst:      3,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのトークンバケットを管理する。
type keyedLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*trackedLimiter
	limit    rate.Limit
	burst    int
}

// trackedLimiter はレートリミッターと最終アクセス時刻を保持する。
type trackedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{
		limiters: make(map[string]*trackedLimiter),
		limit:    limit,
		burst:    burst,
	}
}

// allow はキーのバケットからトークンを1つ消費できるかを返す。
func (k *keyedLimiter) allow(key string) bool {
	return k.get(key).Allow()
}

func (k *keyedLimiter) get(key string) *rate.Limiter {
	k.mu.RLock()
	tl, exists := k.limiters[key]
	k.mu.RUnlock()

	if exists {
		k.mu.Lock()
		tl.lastAccess = time.Now()
		k.mu.Unlock()
		return tl.limiter
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	// ダブルチェック
	if tl, exists := k.limiters[key]; exists {
		tl.lastAccess = time.Now()
		return tl.limiter
	}

	limiter := rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = &trackedLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

func (k *keyedLimiter) evictIdle(now time.Time, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, tl := range k.limiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(k.limiters, key)
		}
	}
}

func (k *keyedLimiter) count() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.limiters)
}

// RateLimiter は認証APIのレート制限を管理する。
// クライアントIPごとの制限と、ログインリンク要求のメールアドレスごとの制限を提供する。
type RateLimiter struct {
	config RateLimiterConfig
	ip     *keyedLimiter
	email  *keyedLimiter
	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		ip:     newKeyedLimiter(config.IPRate, config.IPBurst),
		email:  newKeyedLimiter(config.EmailRate, config.EmailBurst),
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// IPMiddleware はクライアントIPごとのレート制限ミドルウェアを返す。
// chiのRealIPミドルウェアの後に配置すると、プロキシ経由のクライアントIPで判定できる。
func (rl *RateLimiter) IPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.ip.allow(ip) {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "ip"),
				)
				WriteRateLimitResponse(w, rl.config.IPRate)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowEmail はメールアドレスに対するログインリンク要求を許可するかを返す。
// emailは正規化済みのアドレスを渡す。
func (rl *RateLimiter) AllowEmail(email string) bool {
	if rl.email.allow(email) {
		return true
	}
	slog.Warn("rate limit exceeded",
		slog.String("email", email),
		slog.String("limit_type", "email"),
	)
	return false
}

// EmailRate はメールアドレスごとのレートを返す。Retry-Afterの算出に使う。
func (rl *RateLimiter) EmailRate() rate.Limit {
	return rl.config.EmailRate
}

// IPLimiterCount は現在管理されているIPリミッターのエントリ数を返す。
func (rl *RateLimiter) IPLimiterCount() int {
	return rl.ip.count()
}

// EmailLimiterCount は現在管理されているメールアドレスリミッターのエントリ数を返す。
func (rl *RateLimiter) EmailLimiterCount() int {
	return rl.email.count()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスから一定時間経過したエントリを削除する。
// メールアドレスのバケットは満杯に戻るまでの時間より長く保持する。
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.ip.evictIdle(now, rl.config.CleanupInterval*2)
	rl.email.evictIdle(now, maxDuration(rl.config.CleanupInterval*2, refillDuration(rl.config.EmailRate, rl.config.EmailBurst)))
}

// refillDuration は空のバケットが満杯に戻るまでの時間を返す。
func refillDuration(r rate.Limit, burst int) time.Duration {
	if r <= 0 {
		return 0
	}
	return time.Duration(float64(burst) / float64(r) * float64(time.Second))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// clientIP はRemoteAddrからポートを除いたIPを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WriteRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの推定秒数を設定する。
func WriteRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
}
