// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 検証・セッション判定の結果ラベル。
const (
	OutcomeSuccess         = "success"
	OutcomeNotFound        = "not_found"
	OutcomeExpired         = "expired"
	OutcomeAlreadyUsed     = "already_used"
	OutcomeAccountNotFound = "account_not_found"
	OutcomeError           = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、通知、HTTPミドルウェア、スイーパーから利用する。
type MetricsCollector interface {
	RecordLinkIssued()
	RecordLinkVerification(outcome string)
	RecordSessionValidation(outcome string)
	RecordLogout()
	ObserveDelivery(success bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordSwept(store string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	linksIssued        prometheus.Counter
	linkVerifications  *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	logouts            prometheus.Counter
	deliveries         *prometheus.CounterVec
	deliveryLatency    prometheus.Histogram
	httpStatus         *prometheus.CounterVec
	swept              *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		linksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_magic_links_issued_total",
			Help: "発行したログインリンクの合計数",
		}),
		linkVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_link_verifications_total",
			Help: "ログインリンク検証の結果別件数",
		}, []string{"outcome"}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_session_validations_total",
			Help: "セッション検証の結果別件数",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_logouts_total",
			Help: "ログアウトの合計数",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_delivery_total",
			Help: "ログインリンク配送の成否別件数",
		}, []string{"result"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkgate_delivery_latency_seconds",
			Help:    "ログインリンク配送のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_swept_total",
			Help: "スイープで削除したエントリ数",
		}, []string{"store"}),
	}

	reg.MustRegister(
		c.linksIssued,
		c.linkVerifications,
		c.sessionValidations,
		c.logouts,
		c.deliveries,
		c.deliveryLatency,
		c.httpStatus,
		c.swept,
	)

	return c
}

// RecordLinkIssued はログインリンクの発行を記録する。
func (c *Collector) RecordLinkIssued() {
	c.linksIssued.Inc()
}

// RecordLinkVerification はログインリンク検証の結果を記録する。
func (c *Collector) RecordLinkVerification(outcome string) {
	c.linkVerifications.WithLabelValues(outcome).Inc()
}

// RecordSessionValidation はセッション検証の結果を記録する。
func (c *Collector) RecordSessionValidation(outcome string) {
	c.sessionValidations.WithLabelValues(outcome).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// ObserveDelivery は配送の成否とレイテンシを記録する。
func (c *Collector) ObserveDelivery(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	c.deliveries.WithLabelValues(result).Inc()
	c.deliveryLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSwept はスイープで削除した件数を記録する。
func (c *Collector) RecordSwept(store string, count int) {
	c.swept.WithLabelValues(store).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
