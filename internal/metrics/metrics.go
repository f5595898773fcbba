// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// rpc.CallRecorderとauthgw.ResolutionRecorderを満たす。
type Collector struct {
	procedureCalls     *prometheus.CounterVec
	procedureLatency   prometheus.Histogram
	sessionResolutions *prometheus.CounterVec
	batchSize          prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		procedureCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_procedure_calls_total",
			Help: "プロシージャ呼び出しの合計数（プロシージャ・結果コード別）",
		}, []string{"procedure", "code"}),
		procedureLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postboard_procedure_latency_seconds",
			Help:    "プロシージャ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postboard_session_resolutions_total",
			Help: "セッション解決の合計数（結果別）",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postboard_batch_size",
			Help:    "バッチ呼び出しに含まれるプロシージャ数",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		}),
	}

	reg.MustRegister(
		c.procedureCalls,
		c.procedureLatency,
		c.sessionResolutions,
		c.batchSize,
	)

	return c
}

// RecordProcedureCall はプロシージャ呼び出しの結果とレイテンシを記録する。
// codeは成功時 "OK"、失敗時はエラーコード。
func (c *Collector) RecordProcedureCall(procedure, code string, duration time.Duration) {
	c.procedureCalls.WithLabelValues(procedure, code).Inc()
	c.procedureLatency.Observe(duration.Seconds())
}

// RecordBatchSize はバッチ呼び出しのサイズを記録する。
func (c *Collector) RecordBatchSize(size int) {
	c.batchSize.Observe(float64(size))
}

// RecordSessionResolution はセッション解決の結果を記録する。
// outcomeは "authenticated"、"anonymous"、"error" のいずれか。
func (c *Collector) RecordSessionResolution(outcome string) {
	c.sessionResolutions.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
