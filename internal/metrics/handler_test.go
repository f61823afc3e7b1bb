package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordUpstreamRequest("GET /v1/me", 200, time.Millisecond)

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "checkinlog_upstream_requests_total") {
		t.Error("response should contain checkinlog_upstream_requests_total metric")
	}
}

// TestWriteText_WritesRecordedSeries はテキスト形式で記録済みの系列が書き出されることを検証する。
func TestWriteText_WritesRecordedSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordIdentityCache(false)
	c.RecordIdentityCache(true)
	c.RecordLinkCard(LinkCardOK)

	var buf strings.Builder
	if err := WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText がエラーを返した: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`checkinlog_identity_cache_total{result="hit"} 1`,
		`checkinlog_identity_cache_total{result="miss"} 1`,
		`checkinlog_link_card_total{result="ok"} 1`,
		"# TYPE checkinlog_identity_cache_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("出力に %q が含まれるべき:\n%s", want, out)
		}
	}
}
