package preview

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/model"
)

// DefaultDebounce はリンク欄の編集が落ち着いたと判断するまでの待機時間。
const DefaultDebounce = 500 * time.Millisecond

// FormPreview は入力フォームのリンク欄に対応するリンクカードを管理する。
// 後から始まった取得が常に優先され、古い取得の結果は捨てる。
type FormPreview struct {
	source    CardSource
	checker   LinkChecker
	debouncer *Debouncer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	link      string
	seq       uint64
	card      *model.LinkCard
	prefilled bool
	closed    bool
	onChange  func(*model.LinkCard)
}

// NewFormPreview はFormPreviewを生成する。checkerがnilの場合はURLの事前検証を行わない。
func NewFormPreview(source CardSource, checker LinkChecker, delay time.Duration, logger *slog.Logger) *FormPreview {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = applog.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FormPreview{
		source:    source,
		checker:   checker,
		debouncer: NewDebouncer(delay),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnChange は表示中のカードが変わったときに呼ばれる関数を登録する。
// 引数のnilはプレビューなしを表す。
func (p *FormPreview) OnChange(fn func(*model.LinkCard)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Card は表示中のカードを返す。
func (p *FormPreview) Card() *model.LinkCard {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.card
}

// SetLink はリンク欄の変更を通知する。
// 保留中の取得は取り消され、空でなければ待機時間後に新しい取得を予約する。
// 空の場合は表示中のカードも消す。
// seqの更新と予約は同じロックの中で行い、予約の順序をseqの順序と一致させる。
func (p *FormPreview) SetLink(link string) {
	link = strings.TrimSpace(link)

	p.mu.Lock()
	if p.closed || link == p.link {
		p.mu.Unlock()
		return
	}
	p.link = link
	p.seq++
	seq := p.seq

	if link == "" {
		p.debouncer.Cancel()
		p.mu.Unlock()
		p.apply(seq, nil)
		return
	}

	p.debouncer.Trigger(func() {
		p.fetch(seq, link)
	})
	p.mu.Unlock()
}

// Prefill は外部から与えられたリンクのカードを即座に1回だけ取得する。
// デバウンスを経由せず、2回目以降の呼び出しは何もしない。
func (p *FormPreview) Prefill(link string) *model.LinkCard {
	link = strings.TrimSpace(link)

	p.mu.Lock()
	if p.closed || p.prefilled || link == "" {
		p.mu.Unlock()
		return nil
	}
	p.prefilled = true
	p.link = link
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	return p.fetch(seq, link)
}

// Reset は保留中の取得を取り消し、リンクとカードを空にする。送信成功後に使う。
func (p *FormPreview) Reset() {
	p.mu.Lock()
	p.link = ""
	p.seq++
	seq := p.seq
	p.debouncer.Cancel()
	p.mu.Unlock()

	p.apply(seq, nil)
}

// Close は保留中と実行中の取得を取り消す。以降の操作は無視される。
func (p *FormPreview) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.debouncer.Cancel()
	p.cancel()
}

func (p *FormPreview) fetch(seq uint64, link string) *model.LinkCard {
	if p.checker != nil {
		if err := p.checker.CheckLink(link); err != nil {
			p.logger.Debug("プレビュー対象外のリンクです",
				slog.String("url", link),
				slog.String("error", err.Error()),
			)
			p.apply(seq, nil)
			return nil
		}
	}

	card := p.source.GetLinkCard(p.ctx, link)
	if !p.apply(seq, card) {
		return nil
	}
	return card
}

// apply はseqが最新の場合だけカードを反映し、変更を通知する。
func (p *FormPreview) apply(seq uint64, card *model.LinkCard) bool {
	p.mu.Lock()
	if p.closed || seq != p.seq {
		p.mu.Unlock()
		p.logger.Debug("古いリンクカードの取得結果を破棄しました")
		return false
	}
	changed := p.card != card
	p.card = card
	fn := p.onChange
	p.mu.Unlock()

	if changed && fn != nil {
		fn(card)
	}
	return true
}
