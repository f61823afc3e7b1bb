package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/checkinlog/internal/form"
	"github.com/hitoshi/checkinlog/internal/model"
)

const interactiveHelp = `コマンド:
  note <本文>         本文を設定する
  link <URL>          リンクを設定する（入力が落ち着いてからカードを取得）
  tag <名前>          タグを追加する
  untag <名前>        タグを外す
  private on|off      非公開
  sensitive on|off    センシティブ
  discard on|off      経過時間を記録しない
  at <日時>           チェックイン日時（RFC3339 または YYYY-MM-DD HH:MM）
  show                下書きとタグ候補を表示する
  submit              送信する
  quit                送信せずに終了する
`

// interact は標準入力から1行ずつコマンドを読み、フォームを操作する。
// submitが成功するかquit・入力終端で終了する。送信失敗時は下書きを残して入力を続ける。
func interact(ctx context.Context, s Streams, f *form.Form) error {
	fmt.Fprint(s.Out, interactiveHelp)

	scanner := bufio.NewScanner(s.In)
	for {
		fmt.Fprint(s.Out, "> ")
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch verb {
		case "":
			continue
		case "note":
			f.SetNote(arg)
		case "link":
			f.SetLink(arg)
		case "tag":
			if !f.CommitTag(arg) {
				fmt.Fprintln(s.Out, "追加できるタグではありません")
			}
		case "untag":
			if !f.RemoveTag(arg) {
				fmt.Fprintln(s.Out, "そのタグは選択されていません")
			}
		case "private", "sensitive", "discard":
			v, ok := parseSwitch(arg)
			if !ok {
				fmt.Fprintln(s.Out, "on または off を指定してください")
				continue
			}
			switch verb {
			case "private":
				f.SetPrivate(v)
			case "sensitive":
				f.SetTooSensitive(v)
			default:
				f.SetDiscardElapsedTime(v)
			}
		case "at":
			at, err := parseCheckedInAt(arg, time.Local)
			if err != nil {
				fmt.Fprintln(s.Out, err)
				continue
			}
			f.SetCheckedInAt(&at)
		case "show":
			printDraft(s.Out, f.Draft(), f.Preview(), f.Suggestions())
		case "submit":
			if err := submit(ctx, s, f); err != nil {
				fmt.Fprintln(s.Out, err)
				continue
			}
			return nil
		case "quit", "exit":
			fmt.Fprintln(s.Out, "送信せずに終了しました")
			return nil
		default:
			fmt.Fprintf(s.Out, "不明なコマンドです: %s\n", verb)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("入力の読み取りに失敗しました: %w", err)
	}
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "送信せずに終了しました")
	return nil
}

func parseSwitch(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	default:
		return false, false
	}
}

// describeError は送信系のエラーを利用者向けのメッセージにする。元のエラーは%wで保持する。
func describeError(err error) error {
	var (
		verr *model.ValidationError
		aerr *model.APIError
		nerr *model.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		return fmt.Errorf("入力内容を確認してください: %w", err)
	case errors.As(err, &aerr):
		return fmt.Errorf("サーバーがリクエストを受け付けませんでした: %w", err)
	case errors.As(err, &nerr):
		return fmt.Errorf("サーバーに接続できませんでした: %w", err)
	default:
		return err
	}
}
