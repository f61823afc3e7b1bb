package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/checkinlog/internal/form"
	"github.com/hitoshi/checkinlog/internal/history"
	"github.com/hitoshi/checkinlog/internal/preview"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// defaultTermHeight は端末の高さが取れない場合の表示行数。
const defaultTermHeight = 24

// runMe はログインユーザーのプロフィールを表示する。
func runMe(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandMe, s)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	u, err := st.identity.GetCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}
	printUser(s.Out, u)
	return nil
}

// runHistory は最新の履歴を1ページ取得し、表示領域に入る項目だけリンクカードを取得して表示する。
func runHistory(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandHistory, s)
	height := fs.Int("height", 0, "表示行数（0なら端末の高さ）")
	offset := fs.Int("offset", 0, "表示を開始する行")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	// 表示は通知された最新の状態から行う
	var snap history.Snapshot
	unsubscribe := st.history.Subscribe(func(latest history.Snapshot) {
		if latest.Status == history.StatusLoading {
			fmt.Fprintln(s.Err, "履歴を読み込んでいます...")
		}
		snap = latest
	})
	defer unsubscribe()

	if err := st.history.Refresh(ctx); err != nil {
		return fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	if snap.Status == history.StatusEmpty {
		fmt.Fprintln(s.Out, "チェックインはまだありません")
		return nil
	}

	rows := *height
	if rows <= 0 {
		rows = terminalHeight(s)
	}
	top := max(*offset, 0)

	loc := time.Local
	layout := layoutHistory(snap, loc)

	tracker := st.newListTracker()
	defer tracker.Close()
	tracker.Sync(layout.items())
	tracker.Scroll(ctx, preview.Viewport{Top: top * rowHeight, Height: rows * rowHeight})

	lines := layout.render(snap, tracker, loc)
	end := min(top+rows, len(lines))
	for i := top; i < end; i++ {
		fmt.Fprintln(s.Out, lines[i])
	}
	fmt.Fprintf(s.Out, "-- %d件中%d件 --\n", snap.TotalCount, len(snap.Checkins))
	return nil
}

// terminalHeight は出力先が端末なら行数を、そうでなければdefaultTermHeightを返す。
func terminalHeight(s Streams) int {
	f, ok := s.Out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultTermHeight
	}
	_, h, err := term.GetSize(int(f.Fd()))
	if err != nil || h <= 0 {
		return defaultTermHeight
	}
	return h
}

// draftFlags は checkin / edit で共通の入力フラグ。
type draftFlags struct {
	note        *string
	link        *string
	tags        *[]string
	private     *bool
	sensitive   *bool
	discard     *bool
	at          *string
	interactive *bool
}

func addDraftFlags(fs *pflag.FlagSet) draftFlags {
	return draftFlags{
		note:        fs.String("note", "", "本文"),
		link:        fs.String("link", "", "オカズのリンク"),
		tags:        fs.StringArray("tag", nil, "タグ（複数指定可）"),
		private:     fs.Bool("private", false, "非公開にする"),
		sensitive:   fs.Bool("sensitive", false, "センシティブな内容を含む"),
		discard:     fs.Bool("discard-elapsed", false, "経過時間を記録しない"),
		at:          fs.String("at", "", "チェックイン日時（RFC3339 または YYYY-MM-DD HH:MM）"),
		interactive: fs.BoolP("interactive", "i", false, "標準入力から対話的に入力する"),
	}
}

// applyContent は指定された本文・リンク・タグを下書きに反映する。
func (d draftFlags) applyContent(fs *pflag.FlagSet, f *form.Form) {
	if fs.Changed("note") {
		f.SetNote(*d.note)
	}
	if fs.Changed("link") {
		f.SetLink(strings.TrimSpace(*d.link))
	}
	if fs.Changed("tag") {
		for _, t := range *d.tags {
			f.CommitTag(t)
		}
	}
}

// applyOptions は指定されたフラグ類と日時を下書きに反映する。
func (d draftFlags) applyOptions(fs *pflag.FlagSet, f *form.Form) error {
	if fs.Changed("private") {
		f.SetPrivate(*d.private)
	}
	if fs.Changed("sensitive") {
		f.SetTooSensitive(*d.sensitive)
	}
	if fs.Changed("discard-elapsed") {
		f.SetDiscardElapsedTime(*d.discard)
	}
	if fs.Changed("at") {
		at, err := parseCheckedInAt(*d.at, time.Local)
		if err != nil {
			return err
		}
		f.SetCheckedInAt(&at)
	}
	return nil
}

// parseCheckedInAt はRFC3339または「YYYY-MM-DD HH:MM」（loc基準）を解析する。
func parseCheckedInAt(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", v, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("チェックイン日時の形式が不正です: %q", v)
}

// runCheckin はチェックインを作成する。
// --link と --tag は作成フォームの初期値として扱い、リンクカードは待機なしで1回だけ取得する。
func runCheckin(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandCheckin, s)
	flags := addDraftFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	if *flags.interactive {
		// タグ候補の読み込み失敗は入力を妨げない
		if err := st.tags.Load(ctx); err != nil {
			fmt.Fprintf(s.Err, "タグ候補を読み込めませんでした: %v\n", err)
		}
	}

	f := form.NewForm(st.formDeps(*flags.interactive), form.Prefill{
		Note: *flags.note,
		Link: strings.TrimSpace(*flags.link),
		Tags: *flags.tags,
	})
	defer f.Close()

	if err := flags.applyOptions(fs, f); err != nil {
		return err
	}

	if *flags.interactive {
		return interact(ctx, s, f)
	}
	return submit(ctx, s, f)
}

// runEdit は最新の履歴から対象を探し、指定されたフラグの値で更新する。
func runEdit(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandEdit, s)
	flags := addDraftFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.history.Refresh(ctx); err != nil {
		return fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	checkin, ok := st.history.Find(id)
	if !ok {
		return fmt.Errorf("チェックイン #%d は最新の履歴に見つかりません", id)
	}

	if *flags.interactive {
		if err := st.tags.Load(ctx); err != nil {
			fmt.Fprintf(s.Err, "タグ候補を読み込めませんでした: %v\n", err)
		}
	}

	f := form.NewEditForm(st.formDeps(*flags.interactive), checkin)
	defer f.Close()

	flags.applyContent(fs, f)
	if err := flags.applyOptions(fs, f); err != nil {
		return err
	}

	if *flags.interactive {
		return interact(ctx, s, f)
	}
	return submit(ctx, s, f)
}

// submit はフォームを送信し、結果を表示する。
func submit(ctx context.Context, s Streams, f *form.Form) error {
	saved, err := f.Submit(ctx)
	if err != nil {
		return describeError(err)
	}
	verb := "チェックインしました"
	if f.IsEdit() {
		verb = "チェックインを更新しました"
	}
	if saved != nil {
		fmt.Fprintf(s.Out, "%s: #%d\n", verb, saved.ID)
	} else {
		fmt.Fprintln(s.Out, verb)
	}
	return nil
}

// runDelete はチェックインを削除する。
func runDelete(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandDelete, s)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.history.Delete(ctx, id); err != nil {
		return describeError(err)
	}
	fmt.Fprintf(s.Out, "チェックイン #%d を削除しました\n", id)
	return nil
}

// runTags は最近使ったタグを表示する。
func runTags(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandTags, s)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := setupClient(s, common)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.tags.Load(ctx); err != nil {
		return fmt.Errorf("タグ候補の取得に失敗しました: %w", err)
	}
	for _, name := range st.tags.Recent() {
		fmt.Fprintln(s.Out, name)
	}
	return nil
}
