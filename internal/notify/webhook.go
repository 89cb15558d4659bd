package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultSubject は通知メールの件名。
	defaultSubject = "ダッシュボードへのログインリンク"
	// maxErrorBodyBytes はエラー応答から読み取る最大バイト数。
	maxErrorBodyBytes = 512
)

// webhookPayload はメール配送Webhookに送るJSON。
type webhookPayload struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WebhookConfig はWebhookNotifierの設定。
type WebhookConfig struct {
	Endpoint string
	Token    string // 空の場合はAuthorizationヘッダーを付与しない
	Subject  string

	// MaxAttempts は408/429/5xxと通信エラーに対する最大試行回数。0の場合は3回。
	MaxAttempts int
	// RetryBackoff は再送前の初回待ち時間。0の場合は250ms。
	RetryBackoff time.Duration
}

// WebhookNotifier はメール配送サービスのWebhookにリンクをPOSTする。
// 一時的な失敗は指数バックオフで再送し、試行を使い切った場合と
// 再送しても変わらない応答は配送失敗として返す。
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        WebhookConfig
}

// NewWebhookNotifier はWebhookNotifierを生成する。
// httpClientには通常SSRFGuard.NewSafeClientで生成したクライアントを渡す。
func NewWebhookNotifier(httpClient *http.Client, logger *slog.Logger, cfg WebhookConfig) *WebhookNotifier {
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &WebhookNotifier{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

// Send はログインリンクをWebhookへ送信する。
// ctxの期限切れは再送せずにそのまま返す。
func (n *WebhookNotifier) Send(ctx context.Context, recipient, linkURL string, expiresAt time.Time) error {
	body, err := json.Marshal(webhookPayload{
		To:        recipient,
		Subject:   n.cfg.Subject,
		Link:      linkURL,
		ExpiresAt: expiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		result, err := n.post(ctx, body)
		if result == deliveryOK {
			return nil
		}
		lastErr = err
		if result == deliveryPermanent || ctx.Err() != nil || attempt == n.cfg.MaxAttempts {
			break
		}

		delay := retryBackoff(n.cfg.RetryBackoff, attempt)
		n.logger.Warn("webhook delivery will be retried",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return fmt.Errorf("webhook retry aborted: %w", err)
		}
	}
	return lastErr
}

// post はWebhookへ1回POSTし、結果の分類とエラーを返す。
func (n *WebhookNotifier) post(ctx context.Context, body []byte) (deliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return deliveryPermanent, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "linkgate/1.0")
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Error("webhook delivery failed",
			slog.String("error", err.Error()),
		)
		return deliveryRetry, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	result := classifyStatus(resp.StatusCode)
	if result != deliveryOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		n.logger.Error("webhook returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return result, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	// keep-aliveのために本文を読み捨てる
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	return deliveryOK, nil
}
