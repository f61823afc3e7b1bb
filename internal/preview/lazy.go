package preview

import (
	"context"
	"log/slog"
	"sync"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/model"
)

// DefaultMargin は表示領域の上下に加える先読み幅。
const DefaultMargin = 100

// State は履歴項目のリンクカードの表示状態。
type State int

const (
	// StatePlaceholder はまだ表示領域に入っていない（取得していない）。
	StatePlaceholder State = iota
	// StateLoading は取得中。
	StateLoading
	// StateLoaded はカードを取得済み。以降は再取得しない。
	StateLoaded
	// StateFallback はカードが無いか取得に失敗した。プレーンなリンクを表示する。再試行はしない。
	StateFallback
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Rect は項目の描画範囲（縦方向）。
type Rect struct {
	Top    int
	Bottom int
}

// Viewport は現在の表示領域。
type Viewport struct {
	Top    int
	Height int
}

// Intersects は上下にmarginだけ広げた表示領域とrが重なるかを返す。
func (v Viewport) Intersects(r Rect, margin int) bool {
	return r.Bottom > v.Top-margin && r.Top < v.Top+v.Height+margin
}

// LazyCard は履歴の1項目分のリンクカード。
// 表示領域に入ったときに1回だけ取得し、結果はその項目が一覧にある間保持する。
type LazyCard struct {
	link    string
	source  CardSource
	checker LinkChecker
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	card     *model.LinkCard
	detached bool
	cancel   context.CancelFunc
}

// NewLazyCard はLazyCardを生成する。
func NewLazyCard(link string, source CardSource, checker LinkChecker, logger *slog.Logger) *LazyCard {
	if logger == nil {
		logger = applog.Discard()
	}
	return &LazyCard{
		link:    link,
		source:  source,
		checker: checker,
		logger:  logger,
	}
}

// Link は対象のリンクを返す。
func (c *LazyCard) Link() string {
	return c.link
}

// State は現在の状態を返す。
func (c *LazyCard) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Card は取得済みのカードを返す。StateLoaded以外ではnil。
func (c *LazyCard) Card() *model.LinkCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card
}

// OnVisibility は表示領域との交差状態を通知する。
// 初めて可視になったときだけ取得し、完了まで待つ。それ以外は何もしない。
func (c *LazyCard) OnVisibility(ctx context.Context, visible bool) {
	if !visible {
		return
	}

	c.mu.Lock()
	if c.detached || c.state != StatePlaceholder {
		c.mu.Unlock()
		return
	}
	c.state = StateLoading
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	var card *model.LinkCard
	if c.checker == nil || c.checker.CheckLink(c.link) == nil {
		card = c.source.GetLinkCard(ctx, c.link)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = nil
	if c.detached {
		return
	}
	if card == nil {
		c.state = StateFallback
		c.logger.Debug("リンクカードが無いためリンクを表示します",
			slog.String("url", c.link),
		)
		return
	}
	c.state = StateLoaded
	c.card = card
}

// Detach は項目が一覧から外れたことを通知する。実行中の取得は取り消し、以降は取得しない。
func (c *LazyCard) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
