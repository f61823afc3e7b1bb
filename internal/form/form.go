package form

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/preview"
	"github.com/hitoshi/checkinlog/internal/tags"
)

// Submitter はチェックインの作成・更新先。通常は history.Coordinator。
type Submitter interface {
	Create(ctx context.Context, payload model.CheckinPayload) (*model.Checkin, error)
	Update(ctx context.Context, id int64, payload model.CheckinPayload) (*model.Checkin, error)
}

// Deps はフォームが利用するコンポーネント。
type Deps struct {
	Submitter Submitter
	Tags      *tags.Aggregator
	Preview   *preview.FormPreview
	Logger    *slog.Logger
}

// Prefill は外部から与えられる初期値。
type Prefill struct {
	Note string
	Link string
	Tags []string
}

// Form はチェックインの作成・編集フォーム。
type Form struct {
	deps   Deps
	editID int64 // 0なら新規作成

	mu    sync.Mutex
	draft Draft
}

// NewForm は新規作成フォームを生成する。
// 初期値のリンクは待機なしで1回だけカードを取得する。
func NewForm(deps Deps, prefill Prefill) *Form {
	f := newForm(deps)
	f.draft = Draft{
		Note: prefill.Note,
		Link: prefill.Link,
	}
	for _, t := range prefill.Tags {
		f.draft.CommitTag(t)
	}
	if prefill.Link != "" {
		f.deps.Preview.Prefill(prefill.Link)
	}
	return f
}

// NewEditForm は既存のチェックインを編集するフォームを生成する。
func NewEditForm(deps Deps, checkin model.Checkin) *Form {
	f := newForm(deps)
	f.editID = checkin.ID
	f.draft = draftFrom(checkin)
	if checkin.Link != "" {
		f.deps.Preview.Prefill(checkin.Link)
	}
	return f
}

func newForm(deps Deps) *Form {
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.Preview == nil {
		deps.Preview = preview.NewFormPreview(nopSource{}, nil, 0, deps.Logger)
	}
	f := &Form{deps: deps}
	deps.Preview.OnChange(f.onCard)
	return f
}

// onCard はリンクカードの変化をタグ候補に反映する。
func (f *Form) onCard(card *model.LinkCard) {
	if f.deps.Tags != nil {
		f.deps.Tags.SetLinkTags(card.TagNames())
	}
}

// Draft は下書きの複製を返す。
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.draft
	d.Tags = slices.Clone(d.Tags)
	return d
}

// IsEdit は編集フォームかを返す。
func (f *Form) IsEdit() bool {
	return f.editID != 0
}

// SetNote は本文を設定する。
func (f *Form) SetNote(note string) {
	f.mu.Lock()
	f.draft.Note = note
	f.mu.Unlock()
}

// SetLink はリンクを設定し、待機時間後のカード取得を予約する。
func (f *Form) SetLink(link string) {
	f.mu.Lock()
	f.draft.Link = link
	f.mu.Unlock()
	f.deps.Preview.SetLink(link)
}

// CommitTag は手入力されたタグを追加する。
func (f *Form) CommitTag(input string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.CommitTag(input)
}

// RemoveTag はタグを外す。
func (f *Form) RemoveTag(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.RemoveTag(name)
}

// SetPrivate は非公開フラグを設定する。
func (f *Form) SetPrivate(v bool) {
	f.mu.Lock()
	f.draft.IsPrivate = v
	f.mu.Unlock()
}

// SetTooSensitive はセンシティブフラグを設定する。
func (f *Form) SetTooSensitive(v bool) {
	f.mu.Lock()
	f.draft.IsTooSensitive = v
	f.mu.Unlock()
}

// SetDiscardElapsedTime は経過時間を記録しないフラグを設定する。
func (f *Form) SetDiscardElapsedTime(v bool) {
	f.mu.Lock()
	f.draft.DiscardElapsedTime = v
	f.mu.Unlock()
}

// SetCheckedInAt はチェックイン日時を設定する。nilならサーバー側の現在時刻になる。
func (f *Form) SetCheckedInAt(at *time.Time) {
	f.mu.Lock()
	f.draft.CheckedInAt = at
	f.mu.Unlock()
}

// Suggestions は選択済みのタグを除いたタグ候補を返す。
func (f *Form) Suggestions() tags.Suggestions {
	if f.deps.Tags == nil {
		return tags.Suggestions{}
	}
	f.mu.Lock()
	selected := slices.Clone(f.draft.Tags)
	f.mu.Unlock()
	return f.deps.Tags.Suggestions(selected)
}

// Preview は表示中のリンクカードを返す。
func (f *Form) Preview() *model.LinkCard {
	return f.deps.Preview.Card()
}

// Submit は下書きを送信する。新規作成フォームは成功時に下書きとプレビューを空に戻す。
// 失敗時は下書きを残してエラーを返す。
func (f *Form) Submit(ctx context.Context) (*model.Checkin, error) {
	f.mu.Lock()
	payload := f.draft.Payload()
	f.mu.Unlock()

	var (
		saved *model.Checkin
		err   error
	)
	if f.IsEdit() {
		saved, err = f.deps.Submitter.Update(ctx, f.editID, payload)
	} else {
		saved, err = f.deps.Submitter.Create(ctx, payload)
	}
	if err != nil {
		f.deps.Logger.Warn("チェックインの送信に失敗しました",
			slog.Bool("edit", f.IsEdit()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if !f.IsEdit() {
		f.mu.Lock()
		f.draft = Draft{}
		f.mu.Unlock()
		f.deps.Preview.Reset()
	}
	return saved, nil
}

// Close は保留中のカード取得を取り消す。
func (f *Form) Close() {
	f.deps.Preview.Close()
}

// nopSource はカードを取得しないCardSource。
type nopSource struct{}

func (nopSource) GetLinkCard(context.Context, string) *model.LinkCard { return nil }
