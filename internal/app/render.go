package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hitoshi/checkinlog/internal/form"
	"github.com/hitoshi/checkinlog/internal/history"
	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/preview"
	"github.com/hitoshi/checkinlog/internal/tags"
)

// rowHeight は端末1行あたりの縦幅。表示領域の余白(VISIBILITY_MARGIN)と同じ単位で測る。
const rowHeight = 20

func printUser(w io.Writer, u *model.User) {
	fmt.Fprintf(w, "%s (@%s)\n", u.DisplayName, u.Name)
	if u.Bio != "" {
		fmt.Fprintln(w, u.Bio)
	}
	if u.URL != "" {
		fmt.Fprintln(w, u.URL)
	}
	if s := u.CheckinSummary; s != nil {
		fmt.Fprintf(w, "チェックイン数: %d\n", s.TotalCheckins)
		fmt.Fprintf(w, "現在のセッション: %s\n", formatSeconds(s.CurrentSessionElapsed))
		fmt.Fprintf(w, "平均間隔: %s\n", formatSeconds(int64(s.AverageInterval)))
		fmt.Fprintf(w, "最長間隔: %s\n", formatSeconds(s.LongestInterval))
		fmt.Fprintf(w, "最短間隔: %s\n", formatSeconds(s.ShortestInterval))
	}
}

// formatSeconds は秒数を「N日 HH:MM」形式にする。
func formatSeconds(sec int64) string {
	return formatElapsed(time.Duration(sec) * time.Second)
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total / 60) % 24
	minutes := total % 60
	if days > 0 {
		return fmt.Sprintf("%d日 %02d:%02d", days, hours, minutes)
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// historyRow は履歴表示の1項目とその行範囲。
type historyRow struct {
	checkin model.Checkin
	top     int // 先頭行
	lines   int
}

// historyLayout は日付見出しと各チェックインの行位置を決める。
// 見出しは1行、チェックインは本文とリンクの有無に応じて1〜4行。
type historyLayout struct {
	headers map[int]string // 行番号 → 日付見出し
	rows    []historyRow
	total   int
}

func layoutHistory(snap history.Snapshot, loc *time.Location) historyLayout {
	l := historyLayout{headers: make(map[int]string)}
	line := 0
	for _, g := range snap.GroupByDate(loc) {
		l.headers[line] = g.Date
		line++
		for _, c := range g.Checkins {
			n := 1
			if c.Note != "" {
				n++
			}
			if c.Link != "" {
				n += 2 // リンクとカード
			}
			l.rows = append(l.rows, historyRow{checkin: c, top: line, lines: n})
			line += n
		}
	}
	l.total = line
	return l
}

// items はListTracker用の位置情報を返す。
func (l historyLayout) items() []preview.Item {
	out := make([]preview.Item, 0, len(l.rows))
	for _, r := range l.rows {
		out = append(out, preview.Item{
			Key:  r.checkin.ID,
			Link: r.checkin.Link,
			Rect: preview.Rect{Top: r.top * rowHeight, Bottom: (r.top + r.lines) * rowHeight},
		})
	}
	return out
}

// render は表示行をすべて組み立てる。カードの状態はtrackerから読む。
func (l historyLayout) render(snap history.Snapshot, tracker *preview.ListTracker, loc *time.Location) []string {
	elapsed := make(map[int64]time.Duration)
	for _, iv := range snap.Intervals() {
		elapsed[iv.CheckinID] = iv.Elapsed
	}

	lines := make([]string, l.total)
	for at, date := range l.headers {
		lines[at] = "== " + date + " =="
	}
	for _, r := range l.rows {
		c := r.checkin
		head := fmt.Sprintf("%s  #%d", c.CheckedInAt.In(loc).Format("15:04"), c.ID)
		if d, ok := elapsed[c.ID]; ok {
			head += "  (" + formatElapsed(d) + ")"
		}
		if len(c.Tags) > 0 {
			head += "  [" + strings.Join(c.Tags, ", ") + "]"
		}
		if c.IsPrivate {
			head += "  非公開"
		}
		if c.IsTooSensitive {
			head += "  センシティブ"
		}

		i := r.top
		lines[i] = head
		i++
		if c.Note != "" {
			lines[i] = "  " + strings.ReplaceAll(c.Note, "\n", " ")
			i++
		}
		if c.Link != "" {
			lines[i] = "  " + c.Link
			lines[i+1] = "    " + cardLine(tracker, c.ID)
		}
	}
	return lines
}

// cardLine はLazyCardの状態に応じたカード表示を返す。
func cardLine(tracker *preview.ListTracker, id int64) string {
	card, ok := tracker.Card(id)
	if !ok {
		return ""
	}
	switch card.State() {
	case preview.StateLoaded:
		c := card.Card()
		if c == nil {
			return "(プレビューなし)"
		}
		if c.Description != "" {
			return c.Title + " / " + c.Description
		}
		return c.Title
	case preview.StateFallback:
		return "(プレビューなし)"
	case preview.StateLoading:
		return "(読み込み中)"
	default:
		return "…"
	}
}

func printDraft(w io.Writer, d form.Draft, card *model.LinkCard, s tags.Suggestions) {
	fmt.Fprintf(w, "本文: %s\n", d.Note)
	fmt.Fprintf(w, "リンク: %s\n", d.Link)
	if card != nil {
		fmt.Fprintf(w, "  カード: %s\n", card.Title)
	}
	fmt.Fprintf(w, "タグ: %s\n", strings.Join(d.Tags, ", "))
	fmt.Fprintf(w, "非公開: %t  センシティブ: %t  経過時間を記録しない: %t\n",
		d.IsPrivate, d.IsTooSensitive, d.DiscardElapsedTime)
	if len(s.FromLink) > 0 {
		fmt.Fprintf(w, "リンクのタグ候補: %s\n", strings.Join(s.FromLink, ", "))
	}
	if len(s.Recent) > 0 {
		fmt.Fprintf(w, "最近のタグ: %s\n", strings.Join(s.Recent, ", "))
	}
}
