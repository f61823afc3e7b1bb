// Package tissue はチェックインAPI（Tissue）のリモートクライアントを提供する。
// 認証付きの全リクエストはこのパッケージを経由し、エラーの正規化と
// ページネーション情報の抽出を一手に担う。
package tissue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/metrics"
	"github.com/hitoshi/checkinlog/internal/model"
)

const (
	// DefaultPage はチェックイン一覧のデフォルトページ番号。
	DefaultPage = 1
	// DefaultPerPage はチェックイン一覧のデフォルト取得件数。
	DefaultPerPage = 20
	// MinPerPage / MaxPerPage は上流APIが受け付ける1ページあたりの件数範囲。
	MinPerPage = 10
	MaxPerPage = 100

	// totalCountHeader は総件数を運ぶレスポンスヘッダー。
	totalCountHeader = "X-Total-Count"
	// requestIDHeader はリクエスト相関用のヘッダー。
	requestIDHeader = "X-Request-Id"
	userAgent       = "Checkinlog/1.0"
)

// Client はチェックインAPIのクライアント。
// Sessionはポインタで共有し、トークンを複製・保存しない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	session    *model.Session
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはプロキシの /api までを含むURL（例: http://localhost:3001/api）。
func NewClient(
	httpClient *http.Client,
	baseURL string,
	session *model.Session,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		session:    session,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// response はrequestの戻り値。Dataはボディなしの成功レスポンスではnil。
type response[T any] struct {
	Data       *T
	Header     http.Header
	StatusCode int
}

// errorBody は上流APIのエラーレスポンス形式。
type errorBody struct {
	Status int `json:"status"`
	Error  *struct {
		Message    string   `json:"message"`
		Violations []string `json:"violations"`
	} `json:"error"`
}

// request は認証ヘッダーとJSONのContent-Typeを付与してリクエストを送信する。
// routeはメトリクス用のエンドポイント名（ユーザー名等を含まない形）。
// 成功以外のステータスはAPIError、通信失敗はNetworkErrorに正規化する。
func request[T any](ctx context.Context, c *Client, method, path, route string, body any) (*response[T], error) {
	op := method + " " + route

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.session.Token())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(op, 0, time.Since(start))
		c.logger.Error("上流APIの呼び出しに失敗しました",
			slog.String("endpoint", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamRequest(op, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, raw)
		c.logger.Warn("上流APIがエラーステータスを返しました",
			slog.String("endpoint", op),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return nil, apiErr
	}

	result := &response[T]{
		Header:     resp.Header,
		StatusCode: resp.StatusCode,
	}

	// ボディなしの成功レスポンス（削除、204等）はデータなし
	if method == http.MethodDelete || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return result, nil
	}

	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		c.logger.Error("上流APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	result.Data = &data

	c.logger.Debug("上流APIの呼び出しが完了しました",
		slog.String("endpoint", op),
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
	)

	return result, nil
}

// parseAPIError はエラーレスポンスのボディをAPIErrorに変換する。
// ボディを解釈できない場合は汎用メッセージを使う。
func parseAPIError(status int, raw []byte) *model.APIError {
	apiErr := &model.APIError{Status: status, Message: model.DefaultAPIErrorMessage}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == nil {
		return apiErr
	}
	if body.Error.Message != "" {
		apiErr.Message = body.Error.Message
	}
	apiErr.Violations = body.Error.Violations
	return apiErr
}

// GetCurrentUser はログインユーザーのプロフィールを取得する。
func (c *Client) GetCurrentUser(ctx context.Context) (*model.User, error) {
	resp, err := request[model.User](ctx, c, http.MethodGet, "/v1/me", "/v1/me", nil)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("ユーザー情報が空でした")
	}
	return resp.Data, nil
}

// GetUserCheckins はユーザーのチェックイン一覧を1ページ取得する。
// perPageが[10, 100]の範囲外の場合は通信せずにValidationErrorを返す。
// 総件数はX-Total-Countヘッダーから取得する。
func (c *Client) GetUserCheckins(ctx context.Context, username string, page, perPage int) (*model.CheckinPage, error) {
	if err := validatePageQuery(page, perPage); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	path := "/v1/users/" + url.PathEscape(username) + "/checkins?" + q.Encode()

	resp, err := request[[]model.Checkin](ctx, c, http.MethodGet, path, "/v1/users/{name}/checkins", nil)
	if err != nil {
		return nil, err
	}

	var checkins []model.Checkin
	if resp.Data != nil {
		checkins = *resp.Data
	}

	return &model.CheckinPage{
		Checkins:   checkins,
		TotalCount: totalCount(resp.Header, len(checkins)),
	}, nil
}

// totalCount はX-Total-Countヘッダーを解釈する。
// ヘッダーが無いか不正な場合は取得件数で代用する。
func totalCount(h http.Header, fallback int) int {
	v := h.Get(totalCountHeader)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// GetUserTagStats はユーザーのタグ使用統計を取得する。
func (c *Client) GetUserTagStats(ctx context.Context, username string) ([]model.TagStats, error) {
	path := "/v1/users/" + url.PathEscape(username) + "/stats/tags"
	resp, err := request[[]model.TagStats](ctx, c, http.MethodGet, path, "/v1/users/{name}/stats/tags", nil)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}
	return *resp.Data, nil
}

// GetLinkCard はURLのリンクカードを取得する。
// 失敗はすべてログに記録した上で「プレビューなし」(nil)として扱い、呼び出し元に伝播しない。
func (c *Client) GetLinkCard(ctx context.Context, rawURL string) *model.LinkCard {
	if strings.TrimSpace(rawURL) == "" {
		return nil
	}

	path := "/checkin/card?url=" + url.QueryEscape(rawURL)
	resp, err := request[model.LinkCard](ctx, c, http.MethodGet, path, "/checkin/card", nil)
	if err != nil {
		c.metrics.RecordLinkCard(metrics.LinkCardError)
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		c.logger.Log(ctx, level, "リンクカードの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if resp.Data == nil || (resp.Data.URL == "" && resp.Data.Title == "") {
		c.metrics.RecordLinkCard(metrics.LinkCardNone)
		return nil
	}

	c.metrics.RecordLinkCard(metrics.LinkCardOK)
	return resp.Data
}

// CreateCheckin はチェックインを新規作成する。
func (c *Client) CreateCheckin(ctx context.Context, payload model.CheckinPayload) (*model.Checkin, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	resp, err := request[model.Checkin](ctx, c, http.MethodPost, "/v1/checkins", "/v1/checkins", payload)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateCheckin は既存のチェックインを更新する。
func (c *Client) UpdateCheckin(ctx context.Context, id int64, payload model.CheckinPayload) (*model.Checkin, error) {
	if id <= 0 {
		return nil, model.NewValidationError("id", "チェックインIDが不正です")
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	path := "/v1/checkins/" + strconv.FormatInt(id, 10)
	resp, err := request[model.Checkin](ctx, c, http.MethodPatch, path, "/v1/checkins/{id}", payload)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DeleteCheckin はチェックインを削除する。成功時のレスポンスボディは無い。
func (c *Client) DeleteCheckin(ctx context.Context, id int64) error {
	if id <= 0 {
		return model.NewValidationError("id", "チェックインIDが不正です")
	}

	path := "/v1/checkins/" + strconv.FormatInt(id, 10)
	_, err := request[struct{}](ctx, c, http.MethodDelete, path, "/v1/checkins/{id}", nil)
	return err
}
