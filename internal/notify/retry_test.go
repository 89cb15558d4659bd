package notify

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   deliveryResult
	}{
		{200, deliveryOK},
		{202, deliveryOK},
		{204, deliveryOK},
		{400, deliveryPermanent},
		{401, deliveryPermanent},
		{404, deliveryPermanent},
		{408, deliveryRetry},
		{422, deliveryPermanent},
		{429, deliveryRetry},
		{500, deliveryRetry},
		{503, deliveryRetry},
		{302, deliveryPermanent},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	base := 250 * time.Millisecond
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{4, 2 * time.Second},
		{10, maxRetryBackoff},
	}

	for _, tt := range tests {
		if got := retryBackoff(base, tt.failures); got != tt.want {
			t.Errorf("retryBackoff(%v, %d) = %v, want %v", base, tt.failures, got, tt.want)
		}
	}
}

// statusSequenceServer は呼び出しごとにstatusesの値を順に返すテストサーバー。
// 使い切った後は最後の値を返し続ける。
func statusSequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(calls.Add(1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		w.WriteHeader(statuses[i])
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestWebhookNotifier_Send_RetriesTransientFailure(t *testing.T) {
	server, calls := statusSequenceServer(t, http.StatusBadGateway, http.StatusTooManyRequests, http.StatusAccepted)

	var buf bytes.Buffer
	n := NewWebhookNotifier(server.Client(), newTestLogger(&buf), WebhookConfig{
		Endpoint:     server.URL,
		RetryBackoff: time.Millisecond,
	})

	if err := n.Send(context.Background(), "a@example.com", "https://x", testExpiresAt); err != nil {
		t.Fatalf("Send() error = %v, want success after retries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("webhook calls = %d, want 3", got)
	}
}

func TestWebhookNotifier_Send_GivesUpAfterMaxAttempts(t *testing.T) {
	server, calls := statusSequenceServer(t, http.StatusInternalServerError)

	var buf bytes.Buffer
	n := NewWebhookNotifier(server.Client(), newTestLogger(&buf), WebhookConfig{
		Endpoint:     server.URL,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
	})

	if err := n.Send(context.Background(), "a@example.com", "https://x", testExpiresAt); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("webhook calls = %d, want 2", got)
	}
}

func TestWebhookNotifier_Send_NoRetryOnPermanentFailure(t *testing.T) {
	server, calls := statusSequenceServer(t, http.StatusBadRequest, http.StatusAccepted)

	var buf bytes.Buffer
	n := NewWebhookNotifier(server.Client(), newTestLogger(&buf), WebhookConfig{
		Endpoint:     server.URL,
		RetryBackoff: time.Millisecond,
	})

	if err := n.Send(context.Background(), "a@example.com", "https://x", testExpiresAt); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("webhook calls = %d, want 1", got)
	}
}

func TestWebhookNotifier_Send_CancelledDuringBackoff(t *testing.T) {
	server, calls := statusSequenceServer(t, http.StatusServiceUnavailable)

	var buf bytes.Buffer
	n := NewWebhookNotifier(server.Client(), newTestLogger(&buf), WebhookConfig{
		Endpoint:     server.URL,
		RetryBackoff: time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := n.Send(ctx, "a@example.com", "https://x", testExpiresAt); err == nil {
		t.Fatal("expected error when context ends during backoff")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send waited %v, want it to stop at the deadline", elapsed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("webhook calls = %d, want 1", got)
	}
}
