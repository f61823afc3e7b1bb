package handler

import (
	"encoding/json"
	"net/http"
)

// HealthHandler はプロキシ自身の死活確認に応答する。上流APIには問い合わせない。
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
