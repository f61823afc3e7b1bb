package model

import (
	"fmt"
	"strings"
)

// DefaultAPIErrorMessage はエラーレスポンスのボディを解釈できなかった場合のメッセージ。
const DefaultAPIErrorMessage = "API request failed"

// ValidationError はクライアント側の事前条件違反を表す。
// ネットワークに到達する前に返される。
type ValidationError struct {
	Field   string // 違反したフィールド名（JSON名）
	Message string // ユーザー向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// APIError は上流APIが成功以外のHTTPステータスを返したことを表す。
type APIError struct {
	Status     int      // 上流のHTTPステータスコード
	Message    string   // 上流のエラーメッセージ
	Violations []string // フィールドごとの違反内容（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("[%d] %s", e.Status, e.Message)
	}
	return fmt.Sprintf("[%d] %s (%s)", e.Status, e.Message, strings.Join(e.Violations, ", "))
}

// NetworkError はリクエストが完了しなかったことを表す（接続失敗、タイムアウト、キャンセル等）。
type NetworkError struct {
	Op  string // "GET /v1/me" のような操作名
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *NetworkError) Unwrap() error {
	return e.Err
}
