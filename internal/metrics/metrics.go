// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーや削減処理から利用する。
type MetricsCollector interface {
	RecordAdmission()
	RecordSkip(reason string)
	RecordAdmitTimeout()
	RecordEviction()
	RecordSamples(count int)
	RecordCatalogError()
	RecordCycleDuration(cycle string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	admissions    prometheus.Counter
	skips         *prometheus.CounterVec
	admitTimeouts prometheus.Counter
	evictions     prometheus.Counter
	samples       prometheus.Counter
	catalogErrors prometheus.Counter
	cycleDuration *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedman_admissions_total",
			Help: "追加が確認されたトレントの合計数",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seedman_candidate_skips_total",
			Help: "理由別のスキップされた候補の合計数",
		}, []string{"reason"}),
		admitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedman_admit_timeouts_total",
			Help: "追加確認タイムアウトの合計数",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedman_evictions_total",
			Help: "削減されたトレントの合計数",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedman_samples_total",
			Help: "記録された転送観測の合計数",
		}),
		catalogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seedman_catalog_errors_total",
			Help: "カタログ呼び出し失敗の合計数",
		}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seedman_cycle_duration_seconds",
			Help:    "サイクル種別ごとの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"cycle"}),
	}

	reg.MustRegister(
		c.admissions,
		c.skips,
		c.admitTimeouts,
		c.evictions,
		c.samples,
		c.catalogErrors,
		c.cycleDuration,
	)

	return c
}

// RecordAdmission は追加確認の成功を記録する。
func (c *Collector) RecordAdmission() {
	c.admissions.Inc()
}

// RecordSkip は候補のスキップを理由付きで記録する。
func (c *Collector) RecordSkip(reason string) {
	c.skips.WithLabelValues(reason).Inc()
}

// RecordAdmitTimeout は追加確認タイムアウトを記録する。
func (c *Collector) RecordAdmitTimeout() {
	c.admitTimeouts.Inc()
}

// RecordEviction はトレントの削減を記録する。
func (c *Collector) RecordEviction() {
	c.evictions.Inc()
}

// RecordSamples は記録された転送観測数を記録する。
func (c *Collector) RecordSamples(count int) {
	c.samples.Add(float64(count))
}

// RecordCatalogError はカタログ呼び出しの失敗を記録する。
func (c *Collector) RecordCatalogError() {
	c.catalogErrors.Inc()
}

// RecordCycleDuration はサイクルの実行時間を記録する。
func (c *Collector) RecordCycleDuration(cycle string, duration time.Duration) {
	c.cycleDuration.WithLabelValues(cycle).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないコレクター。単発のCLIコマンドで使用する。
type Nop struct{}

func (Nop) RecordAdmission()                          {}
func (Nop) RecordSkip(string)                         {}
func (Nop) RecordAdmitTimeout()                       {}
func (Nop) RecordEviction()                           {}
func (Nop) RecordSamples(int)                         {}
func (Nop) RecordCatalogError()                       {}
func (Nop) RecordCycleDuration(string, time.Duration) {}
