package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/hitoshi/checkinlog/internal/config"
	"github.com/hitoshi/checkinlog/internal/logger"
	"github.com/spf13/pflag"
)

// Streams はCLIの入出力先。ログはErrに、コマンドの結果はOutに書く。
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams はプロセスの標準入出力を返す。
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
func Init(w io.Writer, configDir string) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを作り直す
	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はCLIのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。
func Run(ctx context.Context, s Streams, args []string) error {
	cmd := ParseCommand(args)

	var rest []string
	if len(args) > 0 {
		rest = args[1:]
	}

	switch cmd {
	case CommandHelp:
		fmt.Fprint(s.Out, usage)
		return nil
	case CommandHealthcheck:
		return runHealthcheckCommand(ctx, s, rest)
	case CommandMe:
		return runMe(ctx, s, rest)
	case CommandHistory:
		return runHistory(ctx, s, rest)
	case CommandCheckin:
		return runCheckin(ctx, s, rest)
	case CommandEdit:
		return runEdit(ctx, s, rest)
	case CommandDelete:
		return runDelete(ctx, s, rest)
	case CommandTags:
		return runTags(ctx, s, rest)
	case CommandProxy:
		return runProxy(ctx, s, rest)
	default:
		fmt.Fprint(s.Err, usage)
		return fmt.Errorf("unknown command: %q", args[0])
	}
}

// commonFlags はサブコマンド共通のフラグ。
type commonFlags struct {
	configDir *string
	metrics   *bool // proxy と healthcheck では nil
}

// newFlagSet はサブコマンド用のFlagSetと共通フラグを作る。
// --metrics はクライアント系サブコマンドだけが持つ。proxy は /metrics で公開する。
func newFlagSet(cmd Command, s Streams) (*pflag.FlagSet, *commonFlags) {
	fs := pflag.NewFlagSet(string(cmd), pflag.ContinueOnError)
	fs.SetOutput(s.Err)
	c := &commonFlags{
		configDir: fs.String("config", "", "checkinlog.yaml を探すディレクトリ"),
	}
	switch cmd {
	case CommandProxy, CommandHealthcheck:
	default:
		c.metrics = fs.Bool("metrics", false, "終了時にメトリクスをテキスト形式で標準エラーに出力する")
	}
	return fs, c
}

func (c *commonFlags) dumpMetrics() bool {
	return c.metrics != nil && *c.metrics
}

// parseID は位置引数のチェックインIDを解析する。
func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("チェックインIDを指定してください")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("チェックインIDが不正です: %q", args[0])
	}
	return id, nil
}
