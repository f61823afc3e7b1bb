// Package form は作成・編集中のチェックイン（下書き）を扱う。
// 下書きはフォームだけが所有し、送信または破棄で役目を終える。
package form

import (
	"slices"
	"time"

	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/tags"
)

// Draft はまだ送信していないチェックイン。
type Draft struct {
	CheckedInAt        *time.Time
	Note               string
	Link               string
	Tags               []string
	IsPrivate          bool
	IsTooSensitive     bool
	DiscardElapsedTime bool
}

// CommitTag は手入力されたタグを確定する。
// 前後の空白を除き、空または選択済みの場合は何もせずfalseを返す。
func (d *Draft) CommitTag(input string) bool {
	name := tags.Normalize(input)
	if name == "" || slices.Contains(d.Tags, name) {
		return false
	}
	d.Tags = append(d.Tags, name)
	return true
}

// RemoveTag は選択済みのタグを外す。
func (d *Draft) RemoveTag(name string) bool {
	i := slices.Index(d.Tags, name)
	if i < 0 {
		return false
	}
	d.Tags = slices.Delete(slices.Clone(d.Tags), i, i+1)
	return true
}

// Payload は送信用のペイロードを返す。タグは複製する。
func (d *Draft) Payload() model.CheckinPayload {
	t := slices.Clone(d.Tags)
	if t == nil {
		t = []string{}
	}
	return model.CheckinPayload{
		CheckedInAt:        d.CheckedInAt,
		Note:               d.Note,
		Link:               d.Link,
		Tags:               t,
		IsPrivate:          d.IsPrivate,
		IsTooSensitive:     d.IsTooSensitive,
		DiscardElapsedTime: d.DiscardElapsedTime,
	}
}

// draftFrom は既存のチェックインから下書きを作る。
func draftFrom(c model.Checkin) Draft {
	at := c.CheckedInAt
	return Draft{
		CheckedInAt:        &at,
		Note:               c.Note,
		Link:               c.Link,
		Tags:               slices.Clone(c.Tags),
		IsPrivate:          c.IsPrivate,
		IsTooSensitive:     c.IsTooSensitive,
		DiscardElapsedTime: c.DiscardElapsedTime,
	}
}
