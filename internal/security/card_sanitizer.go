package security

import (
	"net/url"
	"strings"

	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// CardSanitizer はリンクカードの文字列をターミナル表示用のプレーンテキストに変換する。
// 上流のカードはリンク先ページのメタデータ由来のため、タグや制御文字を含み得る。
type CardSanitizer struct {
	policy *bluemonday.Policy
}

// NewCardSanitizer はタグをすべて除去するポリシーでCardSanitizerを生成する。
func NewCardSanitizer() *CardSanitizer {
	return &CardSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はHTMLタグを除去し、実体参照を戻し、空白を1つにまとめる。
func (s *CardSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.FieldsFunc(stripped, isSpaceOrControl), " ")
}

func isSpaceOrControl(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '　' || (r < 0x20) || r == 0x7f
}

// Card はカードの複製を無害化して返す。元のカードは変更しない。
// 画像URLはhttp/https以外なら捨てる。
func (s *CardSanitizer) Card(card *model.LinkCard) *model.LinkCard {
	if card == nil {
		return nil
	}

	out := &model.LinkCard{
		URL:         card.URL,
		Title:       s.Text(card.Title),
		Description: s.Text(card.Description),
		Image:       safeImage(card.Image),
	}
	for _, t := range card.Tags {
		if name := s.Text(t.Name); name != "" {
			out.Tags = append(out.Tags, model.LinkCardTag{Name: name})
		}
	}
	return out
}

func safeImage(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return raw
	default:
		return ""
	}
}
