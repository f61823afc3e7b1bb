package model

import "time"

// CheckinSource はチェックインの登録経路を表す。
type CheckinSource string

const (
	CheckinSourceWeb     CheckinSource = "web"
	CheckinSourceCSV     CheckinSource = "csv"
	CheckinSourceWebhook CheckinSource = "webhook"
	CheckinSourceAPI     CheckinSource = "api"
)

// Checkin はサーバーに保存されたチェックインを表す。
// 正本はサーバー側にあり、クライアントは書き込み後に必ず再取得する（ローカルでの部分更新は行わない）。
type Checkin struct {
	ID                 int64         `json:"id"`
	CheckedInAt        time.Time     `json:"checked_in_at"`
	Tags               []string      `json:"tags"`
	Link               string        `json:"link,omitempty"`
	Note               string        `json:"note,omitempty"`
	IsPrivate          bool          `json:"is_private"`
	IsTooSensitive     bool          `json:"is_too_sensitive"`
	DiscardElapsedTime bool          `json:"discard_elapsed_time"`
	Source             CheckinSource `json:"source"`
}

// CheckinPayload はチェックイン作成・更新APIのリクエストボディ。
// 更新時に空文字列や false で値を消せるよう、checked_in_at 以外は常に送信する。
type CheckinPayload struct {
	CheckedInAt        *time.Time `json:"checked_in_at,omitempty"`
	Note               string     `json:"note" validate:"max=500"`
	Link               string     `json:"link" validate:"omitempty,http_url,max=2000"`
	Tags               []string   `json:"tags" validate:"dive,required,max=255"`
	IsPrivate          bool       `json:"is_private"`
	IsTooSensitive     bool       `json:"is_too_sensitive"`
	DiscardElapsedTime bool       `json:"discard_elapsed_time"`
}

// CheckinPage はチェックイン一覧の1ページ分と総件数を表す。
// 総件数はレスポンスヘッダーから取得される。
type CheckinPage struct {
	Checkins   []Checkin
	TotalCount int
}

// TagStats はユーザーのタグ使用回数の統計を表す。
type TagStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
