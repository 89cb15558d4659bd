package notify

import (
	"context"
	"time"
)

// deliveryResult はWebhook応答のHTTPステータスに基づく配送結果の分類。
type deliveryResult int

const (
	// deliveryOK は配送成功（2xx）。
	deliveryOK deliveryResult = iota
	// deliveryRetry は再送で回復しうる失敗（408/429/5xx）。
	deliveryRetry
	// deliveryPermanent は再送しても変わらない失敗（その他の4xxなど）。
	deliveryPermanent
)

const (
	// defaultMaxAttempts は1回の配送で試行する最大回数。
	defaultMaxAttempts = 3
	// defaultRetryBackoff は再送前の初回待ち時間。
	defaultRetryBackoff = 250 * time.Millisecond
	// maxRetryBackoff は再送前の待ち時間の上限。
	maxRetryBackoff = 2 * time.Second
)

// classifyStatus はHTTPステータスコードを配送結果に分類する。
func classifyStatus(statusCode int) deliveryResult {
	switch {
	case statusCode >= 200 && statusCode <= 299:
		return deliveryOK
	case statusCode == 408 || statusCode == 429:
		return deliveryRetry
	case statusCode >= 500:
		return deliveryRetry
	default:
		return deliveryPermanent
	}
}

// retryBackoff は失敗回数に基づいて指数バックオフの待ち時間を計算する。
// base から2倍ずつ増加し、maxRetryBackoff で頭打ちになる。
func retryBackoff(base time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay > maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return delay
}

// sleepContext はdの間待機する。ctxが先に終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
