// Package history はログインユーザーのチェックイン履歴を保持する。
//
// 履歴は常にサーバーから丸ごと取り直して置き換える。作成・更新・削除の後も
// 手元の一覧を部分的に書き換えず、必ず再取得する。
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	applog "github.com/hitoshi/checkinlog/internal/logger"
	"github.com/hitoshi/checkinlog/internal/model"
)

// DefaultPerPage は再取得時の取得件数。
const DefaultPerPage = 20

// Status は履歴の読み込み状態。
type Status int

const (
	// StatusIdle はまだ一度も読み込んでいない。
	StatusIdle Status = iota
	// StatusLoading は再取得中。
	StatusLoading
	// StatusReady は1件以上の履歴を保持している。
	StatusReady
	// StatusEmpty は再取得が成功し、0件だった。
	StatusEmpty
	// StatusError は直近の再取得が失敗した。前回の一覧は保持している。
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusEmpty:
		return "empty"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// UserProvider はログインユーザーの取得元。通常は identity.Cache。
type UserProvider interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
}

// Remote はチェックインの取得・変更先。通常は tissue.Client。
type Remote interface {
	GetUserCheckins(ctx context.Context, username string, page, perPage int) (*model.CheckinPage, error)
	CreateCheckin(ctx context.Context, payload model.CheckinPayload) (*model.Checkin, error)
	UpdateCheckin(ctx context.Context, id int64, payload model.CheckinPayload) (*model.Checkin, error)
	DeleteCheckin(ctx context.Context, id int64) error
}

// Snapshot はある時点の履歴。Checkinsは呼び出し元が変更してはならない。
type Snapshot struct {
	Status     Status
	Checkins   []model.Checkin
	TotalCount int
	Err        error
	// Version は一覧が置き換わるたびに増える。
	Version uint64
}

// Coordinator はチェックイン履歴の唯一の保持者。
// 並行した再取得は直列化しない。最後に完了したものが表示状態になる。
type Coordinator struct {
	users   UserProvider
	remote  Remote
	perPage int
	logger  *slog.Logger

	mu          sync.Mutex
	checkins    []model.Checkin
	totalCount  int
	lastErr     error
	loaded      bool
	inFlight    int
	version     uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

// NewCoordinator はCoordinatorを生成する。perPageが範囲外の場合はDefaultPerPageを使う。
func NewCoordinator(users UserProvider, remote Remote, perPage int, logger *slog.Logger) *Coordinator {
	if perPage < 10 || perPage > 100 {
		perPage = DefaultPerPage
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Coordinator{
		users:       users,
		remote:      remote,
		perPage:     perPage,
		logger:      logger,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Subscribe は一覧や状態が変わるたびに呼ばれる関数を登録し、登録解除関数を返す。
func (c *Coordinator) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// Snapshot は現在の状態を返す。
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Status:     c.statusLocked(),
		Checkins:   c.checkins,
		TotalCount: c.totalCount,
		Err:        c.lastErr,
		Version:    c.version,
	}
}

func (c *Coordinator) statusLocked() Status {
	switch {
	case c.inFlight > 0:
		return StatusLoading
	case c.lastErr != nil:
		return StatusError
	case !c.loaded:
		return StatusIdle
	case len(c.checkins) == 0:
		return StatusEmpty
	default:
		return StatusReady
	}
}

// Refresh はユーザーを解決し、チェックインの1ページ目を取り直して一覧を丸ごと置き換える。
// 失敗した場合は前回の一覧を残したままエラー状態にする。
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	c.notify()

	page, err := c.fetch(ctx)

	c.mu.Lock()
	c.inFlight--
	if err != nil {
		c.lastErr = err
	} else {
		c.checkins = page.Checkins
		c.totalCount = page.TotalCount
		c.lastErr = nil
		c.loaded = true
		c.version++
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Error("チェックイン履歴の再取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	c.logger.Debug("チェックイン履歴を再取得しました",
		slog.Int("checkin_count", len(page.Checkins)),
		slog.Int("total_count", page.TotalCount),
	)
	return nil
}

func (c *Coordinator) fetch(ctx context.Context) (*model.CheckinPage, error) {
	user, err := c.users.GetCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー情報の取得に失敗しました: %w", err)
	}

	page, err := c.remote.GetUserCheckins(ctx, user.Name, 1, c.perPage)
	if err != nil {
		return nil, fmt.Errorf("チェックイン一覧の取得に失敗しました: %w", err)
	}
	if page == nil {
		page = &model.CheckinPage{}
	}
	return page, nil
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Create はチェックインを作成し、成功したら履歴を再取得する。
// 作成自体が成功していれば、再取得の失敗は履歴の状態にのみ反映し、作成結果を返す。
func (c *Coordinator) Create(ctx context.Context, payload model.CheckinPayload) (*model.Checkin, error) {
	created, err := c.remote.CreateCheckin(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("チェックインを作成しました",
		slog.Int64("checkin_id", idOf(created)),
	)
	// 再取得の失敗はRefresh内でログと状態に反映済み
	_ = c.Refresh(ctx)
	return created, nil
}

// Update はチェックインを更新し、成功したら履歴を再取得する。
func (c *Coordinator) Update(ctx context.Context, id int64, payload model.CheckinPayload) (*model.Checkin, error) {
	updated, err := c.remote.UpdateCheckin(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("チェックインを更新しました",
		slog.Int64("checkin_id", id),
	)
	_ = c.Refresh(ctx)
	return updated, nil
}

// Delete はチェックインを削除し、成功したら履歴を再取得する。
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	if err := c.remote.DeleteCheckin(ctx, id); err != nil {
		return err
	}
	c.logger.Info("チェックインを削除しました",
		slog.Int64("checkin_id", id),
	)
	_ = c.Refresh(ctx)
	return nil
}

func idOf(c *model.Checkin) int64 {
	if c == nil {
		return 0
	}
	return c.ID
}

// Find は一覧からIDに一致するチェックインを返す。
func (c *Coordinator) Find(id int64) (model.Checkin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.checkins, func(ch model.Checkin) bool { return ch.ID == id })
	if i < 0 {
		return model.Checkin{}, false
	}
	return c.checkins[i], true
}

// Interval はあるチェックインと1つ前（古い方）のチェックインの間隔。
type Interval struct {
	CheckinID int64
	Elapsed   time.Duration
}

// Intervals は一覧の各チェックインについて直前のチェックインからの経過時間を返す。
// discard_elapsed_time が設定されたもの、読み込み済みの範囲に古いチェックインが無いものは含めない。
func (s Snapshot) Intervals() []Interval {
	var out []Interval
	for i, ch := range s.Checkins {
		if ch.DiscardElapsedTime || i+1 >= len(s.Checkins) {
			continue
		}
		prev := s.Checkins[i+1]
		out = append(out, Interval{
			CheckinID: ch.ID,
			Elapsed:   ch.CheckedInAt.Sub(prev.CheckedInAt),
		})
	}
	return out
}

// DateGroup は同じ日付のチェックインのまとまり。
type DateGroup struct {
	Date     string // YYYY-MM-DD
	Checkins []model.Checkin
}

// GroupByDate はチェックインをlocの日付ごとにまとめる。順序は一覧の順序を保つ。
func (s Snapshot) GroupByDate(loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	var groups []DateGroup
	for _, ch := range s.Checkins {
		date := ch.CheckedInAt.In(loc).Format(time.DateOnly)
		if n := len(groups); n > 0 && groups[n-1].Date == date {
			groups[n-1].Checkins = append(groups[n-1].Checkins, ch)
			continue
		}
		groups = append(groups, DateGroup{Date: date, Checkins: []model.Checkin{ch}})
	}
	return groups
}
