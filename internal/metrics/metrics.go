// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// リンクカード取得結果のラベル値。
const (
	LinkCardOK    = "ok"
	LinkCardNone  = "none"
	LinkCardError = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リモートクライアント、IDキャッシュ、プロキシから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordIdentityCache(hit bool)
	RecordLinkCard(result string)
	RecordProxyResponse(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	identityCache    *prometheus.CounterVec
	linkCards        *prometheus.CounterVec
	proxyResponses   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkinlog_upstream_requests_total",
			Help: "上流APIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkinlog_upstream_latency_seconds",
			Help:    "上流APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		identityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkinlog_identity_cache_total",
			Help: "ユーザープロフィールキャッシュの参照結果",
		}, []string{"result"}),
		linkCards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkinlog_link_card_total",
			Help: "リンクカード取得結果（ok/none/error）",
		}, []string{"result"}),
		proxyResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkinlog_proxy_responses_total",
			Help: "プロキシが返したHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.identityCache,
		c.linkCards,
		c.proxyResponses,
	)

	return c
}

// RecordUpstreamRequest は上流APIリクエストの結果とレイテンシを記録する。
// statusCodeが0の場合はリクエストが完了しなかったことを表す。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordIdentityCache はキャッシュヒット/ミスを記録する。
func (c *Collector) RecordIdentityCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.identityCache.WithLabelValues(result).Inc()
}

// RecordLinkCard はリンクカード取得結果を記録する。
func (c *Collector) RecordLinkCard(result string) {
	c.linkCards.WithLabelValues(result).Inc()
}

// RecordProxyResponse はプロキシのレスポンスステータスを記録する。
func (c *Collector) RecordProxyResponse(statusCode int) {
	c.proxyResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクス不要なCLI実行やテストで使用する。
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, int, time.Duration) {}
func (Nop) RecordIdentityCache(bool)                         {}
func (Nop) RecordLinkCard(string)                            {}
func (Nop) RecordProxyResponse(int)                          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// WriteText はgathererの内容をPrometheusのテキスト形式でwに書き出す。
// スクレイプされないCLI実行の最後に使う。
func WriteText(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("メトリクスの収集に失敗しました: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("メトリクスの書き出しに失敗しました: %w", err)
		}
	}
	return nil
}
