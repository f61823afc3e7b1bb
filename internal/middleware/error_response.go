package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponseBody はプロキシ自身が返すエラーレスポンスの形式。
// 上流APIのエラーはこの形式に変換せず、そのまま中継する。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// WriteJSONError はJSON形式のエラーレスポンスを書き込む。
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: message})
}

// WriteInternalServerError は内部エラーの共通レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し元には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
}
