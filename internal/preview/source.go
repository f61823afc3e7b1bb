// Package preview はリンクカードの取得タイミングを制御する。
//
// 入力フォームではリンク欄の編集が落ち着くまで取得を遅らせ（デバウンス）、
// 履歴一覧では各項目が表示領域に入った時点で1回だけ取得する。
// どちらの経路でも取得失敗は「プレビューなし」として吸収し、呼び出し元には返さない。
package preview

import (
	"context"

	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/security"
)

// CardSource はリンクカードの取得元。失敗時はnilを返す（tissue.Client.GetLinkCard と同じ契約）。
type CardSource interface {
	GetLinkCard(ctx context.Context, rawURL string) *model.LinkCard
}

// LinkChecker は取得に送ってよいURLかを判定する。security.URLGuard が満たす。
type LinkChecker interface {
	CheckLink(rawURL string) error
}

// sanitizingSource は取得したカードの文字列を表示用に無害化する。
type sanitizingSource struct {
	next      CardSource
	sanitizer *security.CardSanitizer
}

// Sanitized はカードを無害化してから返すCardSourceを返す。
func Sanitized(next CardSource, sanitizer *security.CardSanitizer) CardSource {
	if sanitizer == nil {
		sanitizer = security.NewCardSanitizer()
	}
	return &sanitizingSource{next: next, sanitizer: sanitizer}
}

func (s *sanitizingSource) GetLinkCard(ctx context.Context, rawURL string) *model.LinkCard {
	return s.sanitizer.Card(s.next.GetLinkCard(ctx, rawURL))
}
