// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証・認可・集計の各層やワーカーから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(op, outcome string)
	RecordSessionValidation(outcome string)
	RecordSessionRevokeFailure()
	RecordAuthzDenial(op, reason string)
	RecordAggregateLatency(duration time.Duration)
	RecordContributionAdded()
	RecordSessionsPurged(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts       *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	revokeFailures     prometheus.Counter
	authzDenials       *prometheus.CounterVec
	aggregateLatency   prometheus.Histogram
	contributions      prometheus.Counter
	sessionsPurged     prometheus.Counter
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shagun_auth_attempts_total",
			Help: "認証操作（signup, login, session, oauth）の結果別件数",
		}, []string{"op", "outcome"}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shagun_session_validations_total",
			Help: "セッション検証の結果別件数",
		}, []string{"outcome"}),
		revokeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shagun_session_revoke_failures_total",
			Help: "ログアウト時のセッション失効に失敗した件数",
		}),
		authzDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shagun_authz_denials_total",
			Help: "認可ガードによる拒否の件数",
		}, []string{"op", "reason"}),
		aggregateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shagun_aggregate_latency_seconds",
			Help:    "イベント単位の寄付集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		contributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shagun_contributions_added_total",
			Help: "登録された寄付の合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shagun_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shagun_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.sessionValidations,
		c.revokeFailures,
		c.authzDenials,
		c.aggregateLatency,
		c.contributions,
		c.sessionsPurged,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は認証操作の結果を記録する。
func (c *Collector) RecordAuthAttempt(op, outcome string) {
	c.authAttempts.WithLabelValues(op, outcome).Inc()
}

// RecordSessionValidation はセッション検証の結果を記録する。
func (c *Collector) RecordSessionValidation(outcome string) {
	c.sessionValidations.WithLabelValues(outcome).Inc()
}

// RecordSessionRevokeFailure はセッション失効の失敗を記録する。
func (c *Collector) RecordSessionRevokeFailure() {
	c.revokeFailures.Inc()
}

// RecordAuthzDenial は認可拒否を記録する。
func (c *Collector) RecordAuthzDenial(op, reason string) {
	c.authzDenials.WithLabelValues(op, reason).Inc()
}

// RecordAggregateLatency は集計のレイテンシを記録する。
func (c *Collector) RecordAggregateLatency(duration time.Duration) {
	c.aggregateLatency.Observe(duration.Seconds())
}

// RecordContributionAdded は寄付の登録を記録する。
func (c *Collector) RecordContributionAdded() {
	c.contributions.Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int) {
	c.sessionsPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)     {}
func (Nop) RecordSessionValidation(string)       {}
func (Nop) RecordSessionRevokeFailure()          {}
func (Nop) RecordAuthzDenial(string, string)     {}
func (Nop) RecordAggregateLatency(time.Duration) {}
func (Nop) RecordContributionAdded()             {}
func (Nop) RecordSessionsPurged(int)             {}
func (Nop) RecordHTTPStatus(int)                 {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
