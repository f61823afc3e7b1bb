package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/security"
)

func TestViewport_Intersects(t *testing.T) {
	vp := Viewport{Top: 1000, Height: 500}

	tests := []struct {
		name string
		rect Rect
		want bool
	}{
		{"表示領域内", Rect{Top: 1100, Bottom: 1200}, true},
		{"上端のマージン内", Rect{Top: 850, Bottom: 950}, true},
		{"下端のマージン内", Rect{Top: 1550, Bottom: 1650}, true},
		{"上方のマージン外", Rect{Top: 700, Bottom: 900}, false},
		{"下方のマージン外", Rect{Top: 1600, Bottom: 1700}, false},
		{"表示領域を覆う", Rect{Top: 0, Bottom: 5000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := vp.Intersects(tt.rect, DefaultMargin); got != tt.want {
				t.Errorf("Intersects(%+v) = %v, want %v", tt.rect, got, tt.want)
			}
		})
	}
}

func TestLazyCard_FetchesOnceWhenVisible(t *testing.T) {
	source := newMockSource(nil)
	card := NewLazyCard("https://example.com/", source, nil, nil)

	card.OnVisibility(context.Background(), false)
	if n := len(source.URLs()); n != 0 {
		t.Fatalf("画面外で %d 回取得された", n)
	}
	if card.State() != StatePlaceholder {
		t.Errorf("State = %v, want placeholder", card.State())
	}

	card.OnVisibility(context.Background(), true)
	card.OnVisibility(context.Background(), false)
	card.OnVisibility(context.Background(), true)

	if n := len(source.URLs()); n != 1 {
		t.Errorf("取得回数 = %d, want 1", n)
	}
	if card.State() != StateLoaded {
		t.Errorf("State = %v, want loaded", card.State())
	}
	if card.Card() == nil || card.Card().URL != "https://example.com/" {
		t.Errorf("Card = %+v", card.Card())
	}
}

func TestLazyCard_FallbackIsTerminal(t *testing.T) {
	source := newMockSource(func(ctx context.Context, rawURL string) *model.LinkCard { return nil })
	card := NewLazyCard("https://example.com/", source, nil, nil)

	card.OnVisibility(context.Background(), true)
	if card.State() != StateFallback {
		t.Fatalf("State = %v, want fallback", card.State())
	}

	card.OnVisibility(context.Background(), true)
	if n := len(source.URLs()); n != 1 {
		t.Errorf("フォールバック後に再試行された: 取得回数 = %d", n)
	}
}

func TestLazyCard_RejectedLinkFallsBackWithoutFetch(t *testing.T) {
	source := newMockSource(nil)
	card := NewLazyCard("javascript:alert(1)", source, security.NewURLGuard(), nil)

	card.OnVisibility(context.Background(), true)
	if card.State() != StateFallback {
		t.Errorf("State = %v, want fallback", card.State())
	}
	if n := len(source.URLs()); n != 0 {
		t.Errorf("拒否されたリンクを %d 回取得した", n)
	}
}

func TestLazyCard_DetachedNeverFetches(t *testing.T) {
	source := newMockSource(nil)
	card := NewLazyCard("https://example.com/", source, nil, nil)

	card.Detach()
	card.OnVisibility(context.Background(), true)

	if n := len(source.URLs()); n != 0 {
		t.Errorf("切り離し後に %d 回取得された", n)
	}
}

func TestLazyCard_DetachCancelsInFlight(t *testing.T) {
	source := newMockSource(func(ctx context.Context, rawURL string) *model.LinkCard {
		<-ctx.Done()
		return nil
	})
	card := NewLazyCard("https://example.com/", source, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		card.OnVisibility(context.Background(), true)
	}()

	<-source.calls
	if card.State() != StateLoading {
		t.Errorf("State = %v, want loading", card.State())
	}
	card.Detach()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Detach で実行中の取得が取り消されなかった")
	}
}

func TestListTracker_FetchesOnlyVisibleItemsOnce(t *testing.T) {
	source := newMockSource(nil)
	tracker := NewListTracker(source, nil, DefaultMargin, nil)
	defer tracker.Close()

	var items []Item
	for i := 0; i < 50; i++ {
		items = append(items, Item{
			Key:  int64(i + 1),
			Link: "https://example.com/" + string(rune('a'+i%26)),
			Rect: Rect{Top: i * 100, Bottom: i*100 + 100},
		})
	}
	tracker.Sync(items)

	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 300})
	// 0..300 とマージン100で 項目1..4 が対象
	if n := len(source.URLs()); n != 4 {
		t.Fatalf("初回の取得回数 = %d, want 4", n)
	}

	// 画面外へスクロールして戻っても再取得しない
	tracker.Scroll(context.Background(), Viewport{Top: 3000, Height: 300})
	after := len(source.URLs())
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 300})
	if n := len(source.URLs()); n != after {
		t.Errorf("戻りのスクロールで再取得された: %d -> %d", after, n)
	}

	c, ok := tracker.Card(40)
	if !ok {
		t.Fatal("項目40のカードが無い")
	}
	if c.State() != StatePlaceholder {
		t.Errorf("一度も表示していない項目40が %v になっている", c.State())
	}
}

func TestListTracker_SyncKeepsStateAndDetachesRemoved(t *testing.T) {
	source := newMockSource(nil)
	tracker := NewListTracker(source, nil, 0, nil)
	defer tracker.Close()

	tracker.Sync([]Item{
		{Key: 1, Link: "https://example.com/1", Rect: Rect{Top: 0, Bottom: 10}},
		{Key: 2, Link: "https://example.com/2", Rect: Rect{Top: 10, Bottom: 20}},
		{Key: 3, Rect: Rect{Top: 20, Bottom: 30}},
	})
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 30})

	removed, _ := tracker.Card(2)
	if _, ok := tracker.Card(3); ok {
		t.Error("リンクの無い項目にカードを作ってはならない")
	}

	// 再取得後の一覧。項目0が先頭に増え、項目2が消えた
	tracker.Sync([]Item{
		{Key: 4, Link: "https://example.com/4", Rect: Rect{Top: 0, Bottom: 10}},
		{Key: 1, Link: "https://example.com/1", Rect: Rect{Top: 10, Bottom: 20}},
	})

	if _, ok := tracker.Card(2); ok {
		t.Error("消えた項目のカードが残っている")
	}
	removed.OnVisibility(context.Background(), true)

	before := len(source.URLs())
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 30})
	if got := len(source.URLs()) - before; got != 1 {
		t.Errorf("新しい項目だけ取得されるべき: 取得回数 = %d", got)
	}
	if c, _ := tracker.Card(1); c.State() != StateLoaded {
		t.Errorf("引き継いだ項目1の状態 = %v, want loaded", c.State())
	}
}

func TestListTracker_LinkChangeRecreatesCard(t *testing.T) {
	source := newMockSource(nil)
	tracker := NewListTracker(source, nil, 0, nil)
	defer tracker.Close()

	tracker.Sync([]Item{{Key: 1, Link: "https://example.com/old", Rect: Rect{Top: 0, Bottom: 10}}})
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 10})

	tracker.Sync([]Item{{Key: 1, Link: "https://example.com/new", Rect: Rect{Top: 0, Bottom: 10}}})
	c, _ := tracker.Card(1)
	if c.State() != StatePlaceholder || c.Link() != "https://example.com/new" {
		t.Fatalf("リンク変更後のカード: state=%v link=%s", c.State(), c.Link())
	}
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 10})
	if urls := source.URLs(); len(urls) != 2 || urls[1] != "https://example.com/new" {
		t.Errorf("取得されたURL = %v", urls)
	}
}

func TestListTracker_LimitsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	source := newMockSource(func(ctx context.Context, rawURL string) *model.LinkCard {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return &model.LinkCard{URL: rawURL}
	})
	tracker := NewListTracker(source, nil, 0, nil)
	defer tracker.Close()

	var items []Item
	for i := 0; i < 20; i++ {
		items = append(items, Item{Key: int64(i + 1), Link: "https://example.com/", Rect: Rect{Top: i, Bottom: i + 1}})
	}
	tracker.Sync(items)
	tracker.Scroll(context.Background(), Viewport{Top: 0, Height: 20})

	if p := peak.Load(); p > defaultMaxConcurrency {
		t.Errorf("同時取得数 %d が上限 %d を超えた", p, defaultMaxConcurrency)
	}
	if n := len(source.URLs()); n != 20 {
		t.Errorf("取得回数 = %d, want 20", n)
	}
}

func TestSanitized_StripsMarkup(t *testing.T) {
	source := newMockSource(func(ctx context.Context, rawURL string) *model.LinkCard {
		return &model.LinkCard{URL: rawURL, Title: "<b>作品</b> &amp; 続編"}
	})

	card := Sanitized(source, nil).GetLinkCard(context.Background(), "https://example.com/")
	if card.Title != "作品 & 続編" {
		t.Errorf("Title = %q", card.Title)
	}

	none := Sanitized(newMockSource(func(ctx context.Context, rawURL string) *model.LinkCard { return nil }), nil)
	if none.GetLinkCard(context.Background(), "https://example.com/") != nil {
		t.Error("カードなしは nil のまま返すべき")
	}
}
