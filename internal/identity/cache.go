// Package identity はログインユーザーのプロフィールを短時間キャッシュする。
// 「自分は誰か」を必要とする複数のコンポーネントが同一セッション内で
// 何度もプロフィールを取得しないようにする。
package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/metrics"
	"github.com/hitoshi/checkinlog/internal/model"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL はキャッシュ済みプロフィールの有効期間。
const DefaultTTL = 5 * time.Minute

const flightKey = "me"

// UserFetcher はプロフィールの取得元。通常は tissue.Client。
type UserFetcher interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// cachedEntry は取得時刻つきのキャッシュ値。
type cachedEntry[T any] struct {
	value     *T
	fetchedAt time.Time
}

// fresh は now - fetchedAt < ttl のときだけ true を返す。
func (e *cachedEntry[T]) fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.fetchedAt) < ttl
}

// Cache はプロフィールのTTLキャッシュ。
// コールド状態での同時呼び出しは1回の取得にまとめる。
type Cache struct {
	fetcher UserFetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu    sync.Mutex
	entry *cachedEntry[model.User]
	// gen はInvalidateのたびに進み、無効化前に始まった取得の書き込みを防ぐ。
	gen uint64

	group singleflight.Group
}

// Option はCacheの設定を変更する。
type Option func(*Cache)

// WithTTL は有効期間を設定する。0以下は無視する。
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics はヒット/ミスの記録先を設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache はCacheの新しいインスタンスを生成する。
func NewCache(fetcher UserFetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  applog.Discard(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCurrentUser はTTL内ならキャッシュ済みのプロフィールを返し、
// それ以外は取得してキャッシュに格納する。
// 取得失敗はそのまま返し、キャッシュには何も残さない。
func (c *Cache) GetCurrentUser(ctx context.Context) (*model.User, error) {
	c.mu.Lock()
	if c.entry.fresh(c.now(), c.ttl) {
		user := c.entry.value
		c.mu.Unlock()
		c.metrics.RecordIdentityCache(true)
		return user, nil
	}
	gen := c.gen
	c.mu.Unlock()

	c.metrics.RecordIdentityCache(false)

	// 共有される取得は先頭の呼び出し元のキャンセルに巻き込まれないようにする。
	// 各呼び出し元は自分のctxで待機を打ち切れる。
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fetch(fetchCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.User), nil
	}
}

func (c *Cache) fetch(ctx context.Context, gen uint64) (*model.User, error) {
	user, err := c.fetcher.GetCurrentUser(ctx)
	if err != nil {
		c.logger.Warn("ユーザー情報の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.entry = &cachedEntry[model.User]{value: user, fetchedAt: c.now()}
	}
	c.mu.Unlock()

	c.logger.Debug("ユーザー情報をキャッシュしました",
		slog.String("user", user.Name),
	)
	return user, nil
}

// Invalidate はキャッシュを破棄する。何度呼んでもよい。
// 実行中の取得結果は破棄後のキャッシュには書き込まれない。
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget(flightKey)
}
