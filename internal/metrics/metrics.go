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
// レコードストアクライアントやカート・チェックアウトから利用する。
type MetricsCollector interface {
	RecordStoreRequest(collection, method string, statusCode int, duration time.Duration)
	RecordCartOperation(op, result string)
	RecordCheckout(state string)
	RecordTransactionsCommitted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeRequests  *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec
	cartOperations *prometheus.CounterVec
	checkouts      *prometheus.CounterVec
	committed      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datanet_store_requests_total",
			Help: "レコードストアへのリクエスト数（コレクション・メソッド・ステータス別）",
		}, []string{"collection", "method", "status"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datanet_store_request_seconds",
			Help:    "レコードストアへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "method"}),
		cartOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datanet_cart_operations_total",
			Help: "カート操作の回数（操作・結果別）",
		}, []string{"op", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datanet_checkout_attempts_total",
			Help: "チェックアウト試行の終了状態別の回数",
		}, []string{"state"}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datanet_transactions_committed_total",
			Help: "作成された取引レコードの合計数",
		}),
	}

	reg.MustRegister(
		c.storeRequests,
		c.storeLatency,
		c.cartOperations,
		c.checkouts,
		c.committed,
	)

	return c
}

// RecordStoreRequest はレコードストアへのリクエスト結果を記録する。
// 通信エラーでステータスがない場合はstatusCodeに0を渡す。
func (c *Collector) RecordStoreRequest(collection, method string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.storeRequests.WithLabelValues(collection, method, status).Inc()
	c.storeLatency.WithLabelValues(collection, method).Observe(duration.Seconds())
}

// RecordCartOperation はカート操作の結果を記録する。
func (c *Collector) RecordCartOperation(op, result string) {
	c.cartOperations.WithLabelValues(op, result).Inc()
}

// RecordCheckout はチェックアウト試行の終了状態を記録する。
func (c *Collector) RecordCheckout(state string) {
	c.checkouts.WithLabelValues(state).Inc()
}

// RecordTransactionsCommitted は作成された取引数を記録する。
func (c *Collector) RecordTransactionsCommitted(count int) {
	c.committed.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordStoreRequest(string, string, int, time.Duration) {}
func (Nop) RecordCartOperation(string, string) {}
func (Nop) RecordCheckout(string) {}
func (Nop) RecordTransactionsCommitted(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
