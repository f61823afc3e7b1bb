package model

// LinkCard はリンクプレビュー（OGP等から生成されたカード情報）を表す。
// URLをキーとし、永続化はしない。
type LinkCard struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Image       string        `json:"image"`
	Tags        []LinkCardTag `json:"tags"`
}

// LinkCardTag はリンク先メタデータから推定されたタグ。
type LinkCardTag struct {
	Name string `json:"name"`
}

// TagNames はカードの推定タグ名を出現順に返す。
func (c *LinkCard) TagNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}
