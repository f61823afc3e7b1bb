package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/checkinlog/internal/middleware"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// upstreamRecord は上流モックが受け取ったリクエストを記録する。
type upstreamRecord struct {
	method    string
	path      string
	query     string
	authz     string
	ctype     string
	requestID string
	body      string
}

func newUpstream(t *testing.T, rec *upstreamRecord, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*rec = upstreamRecord{
			method:    r.Method,
			path:      r.URL.Path,
			query:     r.URL.RawQuery,
			authz:     r.Header.Get("Authorization"),
			ctype:     r.Header.Get("Content-Type"),
			requestID: r.Header.Get("X-Request-Id"),
			body:      string(b),
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewProxyHandler_InvalidUpstream(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "://broken", "http://"} {
		if _, err := NewProxyHandler(nil, u, "X-", nil, nil); err == nil {
			t.Errorf("NewProxyHandler(%q) はエラーを返すべき", u)
		}
	}
}

func TestProxyHandler_ForwardsRequest(t *testing.T) {
	var rec upstreamRecord
	upstream := newUpstream(t, &rec, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	})

	h, err := NewProxyHandler(upstream.Client(), upstream.URL+"/api", "X-", nil, nil)
	if err != nil {
		t.Fatalf("NewProxyHandler: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkins?a=1&b=2", strings.NewReader(`{"note":"hi"}`))
	req.Header.Set("Authorization", "Bearer tok")
	req = req.WithContext(middleware.ContextWithRequestID(req.Context(), "req-1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != `{"id":1}` {
		t.Errorf("body = %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	if rec.method != http.MethodPost {
		t.Errorf("上流のメソッド = %q, want POST", rec.method)
	}
	if rec.path != "/api/v1/checkins" {
		t.Errorf("上流のパス = %q, want %q", rec.path, "/api/v1/checkins")
	}
	if rec.query != "a=1&b=2" {
		t.Errorf("上流のクエリ = %q", rec.query)
	}
	if rec.authz != "Bearer tok" {
		t.Errorf("Authorizationが転送されていない: %q", rec.authz)
	}
	if rec.ctype != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", rec.ctype)
	}
	if rec.requestID != "req-1" {
		t.Errorf("X-Request-Id = %q, want %q", rec.requestID, "req-1")
	}
	if rec.body != `{"note":"hi"}` {
		t.Errorf("上流が受け取ったボディ = %q", rec.body)
	}
}

func TestProxyHandler_PassesUpstreamErrorThrough(t *testing.T) {
	var rec upstreamRecord
	upstream := newUpstream(t, &rec, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"status":422,"error":{"message":"invalid","violations":["link"]}}`))
	})

	h, _ := NewProxyHandler(upstream.Client(), upstream.URL, "X-", nil, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/checkins/5", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 (上流のステータスをそのまま返す)", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"violations":["link"]`) {
		t.Errorf("上流のボディがそのまま返されるべき: %s", w.Body.String())
	}
	if rec.path != "/v1/checkins/5" {
		t.Errorf("上流のパス = %q", rec.path)
	}
}

func TestProxyHandler_MirrorsPrefixedHeaders(t *testing.T) {
	var rec upstreamRecord
	upstream := newUpstream(t, &rec, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total-Count", "42")
		w.Header().Set("X-Ratelimit-Remaining", "10")
		w.Header().Set("Set-Cookie", "session=secret")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	h, _ := NewProxyHandler(upstream.Client(), upstream.URL, "X-", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/checkins", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("X-Total-Count"); got != "42" {
		t.Errorf("X-Total-Count = %q, want %q", got, "42")
	}
	if got := w.Header().Get("X-Ratelimit-Remaining"); got != "10" {
		t.Errorf("X-Ratelimit-Remaining = %q", got)
	}
	if got := w.Header().Get("Set-Cookie"); got != "" {
		t.Errorf("プレフィックス外のヘッダーは転送しない: Set-Cookie = %q", got)
	}
	exposed := w.Header().Get("Access-Control-Expose-Headers")
	if exposed != "X-Ratelimit-Remaining, X-Total-Count" {
		t.Errorf("Access-Control-Expose-Headers = %q", exposed)
	}
}

func TestProxyHandler_EmptyPrefixMirrorsNothing(t *testing.T) {
	var rec upstreamRecord
	upstream := newUpstream(t, &rec, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Total-Count", "42")
		w.Write([]byte(`[]`))
	})

	h, _ := NewProxyHandler(upstream.Client(), upstream.URL, "", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("X-Total-Count"); got != "" {
		t.Errorf("プレフィックス未設定時はヘッダーを転送しない: %q", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "" {
		t.Errorf("Access-Control-Expose-Headers = %q, want empty", got)
	}
}

// failingTransport は常に通信エラーを返すRoundTripper。
type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestProxyHandler_UpstreamFailure_Returns500(t *testing.T) {
	var buf bytes.Buffer
	client := &http.Client{Transport: failingTransport{}, Timeout: time.Second}
	h, _ := NewProxyHandler(client, "https://upstream.example.com/api", "X-", newTestLogger(&buf), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "Internal server error" {
		t.Errorf("error = %q, want %q", body.Error, "Internal server error")
	}
	if !strings.Contains(buf.String(), "上流APIへの中継に失敗しました") {
		t.Errorf("中継失敗がログに記録されるべき: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Bearer tok") {
		t.Error("ログにトークンを含めてはならない")
	}
}
