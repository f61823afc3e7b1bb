// Package tags はチェックイン入力時に提示するタグ候補を集約する。
//
// 候補の出どころは3つある。タグ使用統計、直近のチェックインに付いたタグ、
// リンクカードが推定したタグ。前の2つは1つの「最近のタグ」リストに統合して
// ロケールの照合順序で並べ、リンク由来のタグは別リストとして保持する。
package tags

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// RecentWindow は「最近のタグ」の収集対象にするチェックイン件数（1ページ目のみ）。
const RecentWindow = 20

// Origin はタグ候補の出どころ。
type Origin string

const (
	OriginStats  Origin = "stats"
	OriginRecent Origin = "recent"
	// OriginLinkMetadata の候補は Suggestions.FromLink として別に返す。
	OriginLinkMetadata Origin = "linkMetadata"
)

// Suggestion は出どころ付きのタグ候補。
type Suggestion struct {
	Name   string
	Origin Origin
}

// UserProvider はログインユーザーの取得元。通常は identity.Cache。
type UserProvider interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// Source はタグ統計とチェックイン一覧の取得元。通常は tissue.Client。
type Source interface {
	GetUserTagStats(ctx context.Context, username string) ([]model.TagStats, error)
	GetUserCheckins(ctx context.Context, username string, page, perPage int) (*model.CheckinPage, error)
}

// Suggestions は表示用に絞り込んだ候補リスト。
type Suggestions struct {
	Recent   []string
	FromLink []string
}

// Aggregator はタグ候補のキャッシュを保持する。
// 保持しているリストは表示時の絞り込みで変更しない。
type Aggregator struct {
	users  UserProvider
	source Source
	logger *slog.Logger
	tag    language.Tag

	mu       sync.RWMutex
	recent   []string
	fromLink []string
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
// localeは照合順序に使う言語タグ（例: "ja"）。解釈できない場合は日本語とする。
func NewAggregator(users UserProvider, source Source, locale string, logger *slog.Logger) *Aggregator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Japanese
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Aggregator{
		users:  users,
		source: source,
		logger: logger,
		tag:    tag,
	}
}

// Load は統計と直近チェックインを並行に取得し、「最近のタグ」を構築し直す。
// どちらかの取得に失敗した場合はエラーを返し、既存のリストは変更しない。
func (a *Aggregator) Load(ctx context.Context) error {
	user, err := a.users.GetCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	var (
		stats []model.TagStats
		page  *model.CheckinPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = a.source.GetUserTagStats(gctx, user.Name)
		if err != nil {
			return fmt.Errorf("タグ統計の取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		page, err = a.source.GetUserCheckins(gctx, user.Name, 1, RecentWindow)
		if err != nil {
			return fmt.Errorf("直近のチェックインの取得に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("タグ候補の読み込みに失敗しました",
			slog.String("user", user.Name),
			slog.String("error", err.Error()),
		)
		return err
	}

	var checkins []model.Checkin
	if page != nil {
		checkins = page.Checkins
	}
	merged := Merge(stats, checkins)

	names := make([]string, len(merged))
	for i, s := range merged {
		names[i] = s.Name
	}
	a.sort(names)

	a.mu.Lock()
	a.recent = names
	a.mu.Unlock()

	a.logger.Debug("タグ候補を読み込みました",
		slog.Int("tag_count", len(names)),
	)
	return nil
}

// sort はロケールの照合順序で並べる。collate.Collatorは並行利用できないため呼び出しごとに生成する。
func (a *Aggregator) sort(names []string) {
	collate.New(a.tag).SortStrings(names)
}

// Merge は統計のタグと直近チェックインのタグを完全一致で重複排除して統合する。
// 同じ名前は最初に現れた出どころ（統計が優先）で1回だけ含まれる。順序は出現順。
func Merge(stats []model.TagStats, checkins []model.Checkin) []Suggestion {
	seen := make(map[string]struct{})
	var out []Suggestion

	add := func(name string, origin Origin) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, Suggestion{Name: name, Origin: origin})
	}

	for _, s := range stats {
		add(s.Name, OriginStats)
	}
	for _, c := range checkins {
		for _, t := range c.Tags {
			add(t, OriginRecent)
		}
	}
	return out
}

// SetLinkTags はリンクカードが推定したタグを設定する。
// 重複は除き、サーバーの返した順序を保つ。nilや空スライスでクリアする。
func (a *Aggregator) SetLinkTags(names []string) {
	var list []string
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		list = append(list, n)
	}

	a.mu.Lock()
	a.fromLink = list
	a.mu.Unlock()
}

// Recent は「最近のタグ」の複製を返す。
func (a *Aggregator) Recent() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.recent)
}

// Suggestions は選択済みのタグを除いた候補を返す。
// 保持しているリスト自体は変更しない。
func (a *Aggregator) Suggestions(selected []string) Suggestions {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Suggestions{
		Recent:   exclude(a.recent, selected),
		FromLink: exclude(a.fromLink, selected),
	}
}

func exclude(list, selected []string) []string {
	out := make([]string, 0, len(list))
	for _, name := range list {
		if !slices.Contains(selected, name) {
			out = append(out, name)
		}
	}
	return out
}

// Normalize は手入力されたタグの前後の空白を除く。空白のみなら空文字列を返す。
func Normalize(input string) string {
	return strings.TrimSpace(input)
}
