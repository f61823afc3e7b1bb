// Package handler はチェックインAPIの認証付きリバースプロキシのHTTPハンドラーを提供する。
package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/metrics"
	"github.com/hitoshi/checkinlog/internal/middleware"
)

// maxRequestBody は中継するリクエストボディの上限。
const maxRequestBody = 1 << 20

// ProxyHandler は /api/* へのリクエストを上流APIへ中継する。
// 呼び出し元のAuthorizationヘッダーをそのまま渡し、トークンの検証は上流に任せる。
type ProxyHandler struct {
	client       *http.Client
	upstream     *url.URL
	headerPrefix string
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
}

// NewProxyHandler はProxyHandlerの新しいインスタンスを生成する。
// headerPrefixで始まる上流のレスポンスヘッダーは呼び出し元へ転送し、CORSで公開する。
func NewProxyHandler(
	client *http.Client,
	upstreamURL string,
	headerPrefix string,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) (*ProxyHandler, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %s", upstreamURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &ProxyHandler{
		client:       client,
		upstream:     u,
		headerPrefix: http.CanonicalHeaderKey(headerPrefix),
		logger:       logger,
		metrics:      collector,
	}, nil
}

// ServeHTTP はメソッド、パス（/api を除いた部分）、クエリ、ボディを上流へ転送し、
// 上流のステータスとボディをそのまま返す。上流に到達できない場合は500を返す。
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := h.targetURL(r)
	requestID := middleware.RequestIDFromContext(r.Context())

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody {
		body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		h.logger.Error("上流リクエストの作成に失敗しました",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	req.Header.Set("Authorization", r.Header.Get("Authorization"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.metrics.RecordUpstreamRequest("proxy", 0, time.Since(start))
		h.logger.Error("上流APIへの中継に失敗しました",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	defer resp.Body.Close()
	h.metrics.RecordUpstreamRequest("proxy", resp.StatusCode, time.Since(start))

	h.copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("上流レスポンスの転送が中断しました",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// targetURL は上流のURLを組み立てる。/api/v1/me は <upstream>/v1/me になる。
func (h *ProxyHandler) targetURL(r *http.Request) string {
	u := *h.upstream
	rest := strings.TrimPrefix(r.URL.Path, "/api")
	u.Path = strings.TrimRight(h.upstream.Path, "/") + rest
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

// copyHeaders はContent-Typeと予約プレフィックスのヘッダーを転送し、
// 転送したヘッダーをAccess-Control-Expose-Headersに列挙する。
func (h *ProxyHandler) copyHeaders(dst, src http.Header) {
	if ct := src.Get("Content-Type"); ct != "" {
		dst.Set("Content-Type", ct)
	}
	if h.headerPrefix == "" {
		return
	}

	var exposed []string
	for key, values := range src {
		if !strings.HasPrefix(key, h.headerPrefix) {
			continue
		}
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
		exposed = append(exposed, key)
	}
	if len(exposed) == 0 {
		return
	}
	sort.Strings(exposed)
	dst.Set("Access-Control-Expose-Headers", strings.Join(exposed, ", "))
}
