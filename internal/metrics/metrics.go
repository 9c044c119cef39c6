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
// ワーカーから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordItemsCreated(count int)
	RecordEnrichment(outcome string)
	RecordExternalCall(service string)
	RecordJobDuration(job string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess prometheus.Counter
	fetchFail    prometheus.Counter
	httpStatus   *prometheus.CounterVec
	itemsCreated prometheus.Counter
	enrichment   *prometheus.CounterVec
	externalCall *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snowpulse_fetch_success_total",
			Help: "ソースフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snowpulse_fetch_fail_total",
			Help: "ソースフェッチ失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snowpulse_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		itemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snowpulse_items_created_total",
			Help: "新規作成されたコンテンツの合計数",
		}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snowpulse_enrichment_total",
			Help: "エンリッチ処理の結果別の合計数",
		}, []string{"outcome"}),
		externalCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snowpulse_external_call_total",
			Help: "外部APIコールのサービス別の合計数",
		}, []string{"service"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snowpulse_job_duration_seconds",
			Help:    "バックグラウンドジョブの実行時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.itemsCreated,
		c.enrichment,
		c.externalCall,
		c.jobDuration,
	)

	return c
}

// RecordFetchSuccess はソースフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はソースフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordItemsCreated は新規作成されたコンテンツ数を記録する。
func (c *Collector) RecordItemsCreated(count int) {
	c.itemsCreated.Add(float64(count))
}

// RecordEnrichment はエンリッチ処理の結果を記録する。
// outcomeはenriched / errorのいずれか。
func (c *Collector) RecordEnrichment(outcome string) {
	c.enrichment.WithLabelValues(outcome).Inc()
}

// RecordExternalCall は外部APIコールを記録する。
// serviceはstore / partner_portal / edgar / openai / geminiなど。
func (c *Collector) RecordExternalCall(service string) {
	c.externalCall.WithLabelValues(service).Inc()
}

// RecordJobDuration はジョブの実行時間を記録する。
func (c *Collector) RecordJobDuration(job string, duration time.Duration) {
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
