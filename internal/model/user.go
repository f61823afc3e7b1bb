// Package model はドメインモデルを定義する。
package model

// User はチェックインAPIのログインユーザーのプロフィールを表す。
// 取得後はイミュータブルとして扱い、再取得時は丸ごと置き換える。
type User struct {
	Name           string          `json:"name"`
	DisplayName    string          `json:"display_name"`
	IsProtected    bool            `json:"is_protected"`
	PrivateLikes   bool            `json:"private_likes"`
	Bio            string          `json:"bio,omitempty"`
	URL            string          `json:"url,omitempty"`
	CheckinSummary *CheckinSummary `json:"checkin_summary,omitempty"`
}

// CheckinSummary はサーバー側で算出されるチェックイン統計を表す。
// 間隔系の値はすべて秒単位。
type CheckinSummary struct {
	CurrentSessionElapsed int64   `json:"current_session_elapsed"`
	TotalCheckins         int     `json:"total_checkins"`
	TotalTimes            int64   `json:"total_times"`
	AverageInterval       float64 `json:"average_interval"`
	LongestInterval       int64   `json:"longest_interval"`
	ShortestInterval      int64   `json:"shortest_interval"`
}
