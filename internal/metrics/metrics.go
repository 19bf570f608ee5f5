// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/memoman/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordMemoOperation(op string)
	RecordStatusTransition(from, to model.MemoStatus)
	RecordExpiryPromotions(count int)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	memoOps         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	promotions      prometheus.Counter
	httpStatus      *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		memoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoman_memo_operations_total",
			Help: "操作種別ごとのメモ操作成功数",
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoman_status_transitions_total",
			Help: "ステータス遷移の合計数",
		}, []string{"from", "to"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoman_expiry_promotions_total",
			Help: "期限切れによりexpiredへ昇格したメモの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoman_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.memoOps,
		c.transitions,
		c.promotions,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordMemoOperation はメモ操作を記録する。
func (c *Collector) RecordMemoOperation(op string) {
	c.memoOps.WithLabelValues(op).Inc()
}

// RecordStatusTransition はステータス遷移を記録する。
func (c *Collector) RecordStatusTransition(from, to model.MemoStatus) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordExpiryPromotions は期限切れ昇格数を記録する。
func (c *Collector) RecordExpiryPromotions(count int) {
	if count > 0 {
		c.promotions.Add(float64(count))
	}
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	if count > 0 {
		c.sessionsCleaned.Add(float64(count))
	}
}

// StatusCounter はステータス別メモ件数の取得インターフェース。
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[model.MemoStatus]int, error)
}

// StatusDistribution はスクレイプ時にステータス別のメモ件数を集計するprometheus.Collector。
type StatusDistribution struct {
	counter StatusCounter
	timeout time.Duration
	desc    *prometheus.Desc
}

// NewStatusDistribution はStatusDistributionを生成する。
func NewStatusDistribution(counter StatusCounter) *StatusDistribution {
	return &StatusDistribution{
		counter: counter,
		timeout: 5 * time.Second,
		desc: prometheus.NewDesc(
			"memoman_memos",
			"ステータス別のメモ件数",
			[]string{"status"}, nil,
		),
	}
}

// Describe はprometheus.Collectorの実装。
func (d *StatusDistribution) Describe(ch chan<- *prometheus.Desc) {
	ch <- d.desc
}

// Collect はprometheus.Collectorの実装。集計に失敗した場合は何も出力しない。
func (d *StatusDistribution) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	counts, err := d.counter.CountByStatus(ctx)
	if err != nil {
		slog.Warn("メモ件数の集計に失敗しました", slog.String("error", err.Error()))
		return
	}
	for _, status := range model.MemoStatuses() {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue,
			float64(counts[status]), string(status))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
