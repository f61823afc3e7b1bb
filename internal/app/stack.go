package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/checkinlog/internal/config"
	"github.com/hitoshi/checkinlog/internal/form"
	"github.com/hitoshi/checkinlog/internal/history"
	"github.com/hitoshi/checkinlog/internal/identity"
	"github.com/hitoshi/checkinlog/internal/metrics"
	"github.com/hitoshi/checkinlog/internal/model"
	"github.com/hitoshi/checkinlog/internal/preview"
	"github.com/hitoshi/checkinlog/internal/security"
	"github.com/hitoshi/checkinlog/internal/tags"
	"github.com/hitoshi/checkinlog/internal/tissue"
	"github.com/prometheus/client_golang/prometheus"
)

// clientStack はクライアント系サブコマンドが共有するコンポーネント一式。
// セッション・IDキャッシュ・履歴はこの1インスタンスだけが保持する。
type clientStack struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *model.Session

	client   *tissue.Client
	identity *identity.Cache
	tags     *tags.Aggregator
	history  *history.Coordinator
	cards    preview.CardSource
	guard    security.URLGuard

	registry *prometheus.Registry
	// metricsOut が nil でなければ close 時にメトリクスを書き出す
	metricsOut io.Writer
}

// newClientStack はConfigから依存関係をワイヤリングする。
func newClientStack(cfg *config.Config, logger *slog.Logger) *clientStack {
	session := model.NewSession(cfg.Token)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client := tissue.NewClient(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.APIBaseURL,
		session,
		logger,
		collector,
	)

	ids := identity.NewCache(client,
		identity.WithTTL(cfg.IdentityTTL),
		identity.WithLogger(logger),
		identity.WithMetrics(collector),
	)

	return &clientStack{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		client:   client,
		identity: ids,
		tags:     tags.NewAggregator(ids, client, cfg.TagLocale, logger),
		history:  history.NewCoordinator(ids, client, cfg.HistoryPerPage, logger),
		cards:    preview.Sanitized(client, security.NewCardSanitizer()),
		guard:    security.NewURLGuard(),
		registry: reg,
	}
}

// formDeps はフォーム用の依存関係を返す。withPreviewがfalseならカードを取得しない。
func (st *clientStack) formDeps(withPreview bool) form.Deps {
	deps := form.Deps{
		Submitter: st.history,
		Tags:      st.tags,
		Logger:    st.logger,
	}
	if withPreview {
		deps.Preview = preview.NewFormPreview(st.cards, st.guard, st.cfg.LinkPreviewDebounce, st.logger)
	}
	return deps
}

// newListTracker は履歴一覧用のListTrackerを返す。
func (st *clientStack) newListTracker() *preview.ListTracker {
	return preview.NewListTracker(st.cards, st.guard, st.cfg.VisibilityMargin, st.logger)
}

// close はキャッシュしたプロフィールとトークンをメモリから消す。
// --metrics 指定時は収集したメトリクスを書き出す。
func (st *clientStack) close() {
	st.identity.Invalidate()
	st.session.Clear()

	if st.metricsOut == nil {
		return
	}
	if err := metrics.WriteText(st.metricsOut, st.registry); err != nil {
		st.logger.Warn("メトリクスの出力に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// setupClient はフラグ解析後の共通初期化を行う。トークン未設定はエラー。
func setupClient(s Streams, common *commonFlags) (*clientStack, error) {
	cfg, logger, err := Init(s.Err, *common.configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireCredential(); err != nil {
		return nil, err
	}
	st := newClientStack(cfg, logger)
	if common.dumpMetrics() {
		st.metricsOut = s.Err
	}
	return st, nil
}
