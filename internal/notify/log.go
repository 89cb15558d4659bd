// Package notify はログインリンクをユーザーに届ける配送手段を提供する。
package notify

import (
	"context"
	"log/slog"
	"time"
)

// LogNotifier はログインリンクを構造化ログに出力する開発用の配送手段。
// 実際のメールは送信しない。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send はリンクをINFOレベルでログに出力する。
func (n *LogNotifier) Send(ctx context.Context, recipient, linkURL string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "magic link issued",
		slog.String("to", recipient),
		slog.String("link", linkURL),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
