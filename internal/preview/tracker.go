package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
)

// defaultMaxConcurrency はスクロール1回あたりの同時取得数の上限。
const defaultMaxConcurrency = 4

// Item は履歴一覧の1項目の位置情報。Keyはチェックインの不変なIDを使う。
type Item struct {
	Key  int64
	Link string
	Rect Rect
}

// ListTracker は履歴一覧の各項目に対応するLazyCardを管理する。
// 一覧が再取得されても同じキーの項目はカードを引き継ぎ、消えた項目は切り離す。
type ListTracker struct {
	source         CardSource
	checker        LinkChecker
	logger         *slog.Logger
	margin         int
	maxConcurrency int

	mu    sync.Mutex
	items []Item
	cards map[int64]*LazyCard
}

// NewListTracker はListTrackerを生成する。marginが負の場合は0とする。
func NewListTracker(source CardSource, checker LinkChecker, margin int, logger *slog.Logger) *ListTracker {
	if margin < 0 {
		margin = 0
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &ListTracker{
		source:         source,
		checker:        checker,
		logger:         logger,
		margin:         margin,
		maxConcurrency: defaultMaxConcurrency,
		cards:          make(map[int64]*LazyCard),
	}
}

// Sync は現在の一覧に合わせてカードを作成・切り離しする。
// リンクの無い項目にはカードを作らない。同じキーでもリンクが変わった場合は作り直す。
func (t *ListTracker) Sync(items []Item) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keep := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.Link == "" {
			continue
		}
		keep[it.Key] = struct{}{}
		if c, ok := t.cards[it.Key]; ok {
			if c.Link() == it.Link {
				continue
			}
			c.Detach()
		}
		t.cards[it.Key] = NewLazyCard(it.Link, t.source, t.checker, t.logger)
	}

	for key, c := range t.cards {
		if _, ok := keep[key]; !ok {
			c.Detach()
			delete(t.cards, key)
		}
	}

	t.items = append(t.items[:0], items...)
}

// Card はキーに対応するカードを返す。
func (t *ListTracker) Card(key int64) (*LazyCard, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cards[key]
	return c, ok
}

// Scroll は表示領域を更新し、新たに可視になった項目のカードを取得する。
// semaphoreで同時取得数を制限し、すべての取得が終わるまで待つ。
func (t *ListTracker) Scroll(ctx context.Context, vp Viewport) {
	t.mu.Lock()
	var visible []*LazyCard
	for _, it := range t.items {
		c, ok := t.cards[it.Key]
		if !ok || c.State() != StatePlaceholder {
			continue
		}
		if vp.Intersects(it.Rect, t.margin) {
			visible = append(visible, c)
		}
	}
	t.mu.Unlock()

	if len(visible) == 0 {
		return
	}

	start := time.Now()
	sem := make(chan struct{}, t.maxConcurrency)
	var wg sync.WaitGroup

	for _, c := range visible {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *LazyCard) {
			defer wg.Done()
			defer func() { <-sem }()
			c.OnVisibility(ctx, true)
		}(c)
	}

	wg.Wait()

	t.logger.Debug("表示領域のリンクカードを取得しました",
		slog.Int("card_count", len(visible)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// Close はすべてのカードを切り離す。
func (t *ListTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, c := range t.cards {
		c.Detach()
		delete(t.cards, key)
	}
	t.items = nil
}
