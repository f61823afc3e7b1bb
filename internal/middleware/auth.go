// Package middleware はプロキシのHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// clientKeyContextKey はAuthorizationヘッダーから導いた利用者キーを格納する。
	clientKeyContextKey = contextKey("client_key")
	// requestIDContextKey はリクエストIDを格納する。
	requestIDContextKey = contextKey("request_id")
	// clientSinkContextKey は外側のログミドルウェアへ利用者キーを返すための書き込み先。
	clientSinkContextKey = contextKey("client_sink")
)

// RequestIDHeader はリクエスト相関用のヘッダー名。
const RequestIDHeader = "X-Request-Id"

// NewRequireAuthorizationMiddleware はAuthorizationヘッダーの有無だけを検証するミドルウェアを返す。
// トークンの正当性は上流APIが判断する。ヘッダーが無い場合は401を返す。
// 通過したリクエストにはトークンのハッシュを利用者キーとして注入する（レート制限とログ用）。
func NewRequireAuthorizationMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if authz == "" {
				WriteJSONError(w, http.StatusUnauthorized, "Authorization header missing")
				return
			}

			key := clientKeyOf(authz)
			if sink, ok := r.Context().Value(clientSinkContextKey).(*string); ok {
				*sink = key
			}
			ctx := ContextWithClientKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientKeyOf はトークンそのものをメモリやログに残さないよう、短いハッシュに変換する。
func clientKeyOf(authz string) string {
	sum := sha256.Sum256([]byte(authz))
	return hex.EncodeToString(sum[:8])
}

func withClientSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, clientSinkContextKey, sink)
}

// ClientKeyFromContext はリクエストコンテキストから利用者キーを取得する。
// NewRequireAuthorizationMiddlewareを通過したリクエストでのみ有効。
func ClientKeyFromContext(ctx context.Context) (string, error) {
	key, ok := ctx.Value(clientKeyContextKey).(string)
	if !ok || key == "" {
		return "", fmt.Errorf("client key not found in context")
	}
	return key, nil
}

// ContextWithClientKey はコンテキストに利用者キーを注入する。
func ContextWithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyContextKey, key)
}

// NewRequestIDMiddleware はリクエストIDを採番し、コンテキストとレスポンスヘッダーに設定する。
// 呼び出し元がX-Request-Idを付けていればそれを引き継ぐ。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

// ContextWithRequestID はリクエストIDをcontextに設定する。
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext はリクエストIDを返す。無ければ空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
