package app

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandMe はログインユーザーのプロフィールを表示する。
	CommandMe Command = "me"
	// CommandHistory は最新のチェックイン履歴を表示する。
	CommandHistory Command = "history"
	// CommandCheckin はチェックインを新規作成する。
	CommandCheckin Command = "checkin"
	// CommandEdit は既存のチェックインを更新する。
	CommandEdit Command = "edit"
	// CommandDelete はチェックインを削除する。
	CommandDelete Command = "delete"
	// CommandTags は最近使ったタグの候補を表示する。
	CommandTags Command = "tags"
	// CommandProxy は認証付きリバースプロキシを起動する。
	CommandProxy Command = "proxy"
	// CommandHealthcheck は起動中のプロキシの /health を確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
	// CommandUnknown はサポート外のサブコマンド。
	CommandUnknown Command = ""
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandHelp、サポート外の場合はCommandUnknownを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandHelp
	}

	switch args[0] {
	case "me":
		return CommandMe
	case "history":
		return CommandHistory
	case "checkin":
		return CommandCheckin
	case "edit":
		return CommandEdit
	case "delete":
		return CommandDelete
	case "tags":
		return CommandTags
	case "proxy":
		return CommandProxy
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandUnknown
	}
}

const usage = `使い方: checkinlog <command> [flags]

コマンド:
  me           ログインユーザーのプロフィールを表示する
  history      最新のチェックイン履歴を表示する
  checkin      チェックインする（--interactive で対話入力）
  edit <id>    チェックインを編集する
  delete <id>  チェックインを削除する
  tags         最近使ったタグを表示する
  proxy        認証付きリバースプロキシを起動する
  healthcheck  起動中のプロキシの死活を確認する

共通フラグ:
  --config <dir>  checkinlog.yaml を探すディレクトリ
`
