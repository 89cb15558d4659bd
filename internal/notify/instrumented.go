package notify

import (
	"context"
	"time"
)

// Sender はログインリンクの配送インターフェース。
type Sender interface {
	Send(ctx context.Context, recipient, linkURL string, expiresAt time.Time) error
}

// DeliveryRecorder は配送結果を記録するメトリクスのインターフェース。
type DeliveryRecorder interface {
	ObserveDelivery(success bool, duration time.Duration)
}

// InstrumentedNotifier は配送にかかった時間と成否を記録するデコレーター。
type InstrumentedNotifier struct {
	next     Sender
	recorder DeliveryRecorder
}

// NewInstrumentedNotifier はnextをラップしたInstrumentedNotifierを生成する。
func NewInstrumentedNotifier(next Sender, recorder DeliveryRecorder) *InstrumentedNotifier {
	return &InstrumentedNotifier{next: next, recorder: recorder}
}

// Send は配送を実行し、所要時間と成否を記録する。
func (n *InstrumentedNotifier) Send(ctx context.Context, recipient, linkURL string, expiresAt time.Time) error {
	start := time.Now()
	err := n.next.Send(ctx, recipient, linkURL, expiresAt)
	n.recorder.ObserveDelivery(err == nil, time.Since(start))
	return err
}

// compile-time interface check
var (
	_ Sender = (*LogNotifier)(nil)
	_ Sender = (*WebhookNotifier)(nil)
	_ Sender = (*InstrumentedNotifier)(nil)
)
