package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/checkinlog/internal/config"
	"github.com/hitoshi/checkinlog/internal/handler"
	"github.com/hitoshi/checkinlog/internal/metrics"
	"github.com/hitoshi/checkinlog/internal/middleware"
	"github.com/hitoshi/checkinlog/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// runProxy は認証付きリバースプロキシを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runProxy(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandProxy, s)
	port := fs.String("port", "", "待ち受けポート（PROXY_PORTより優先）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := Init(s.Err, *common.configDir)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if *port != "" {
		cfg.ProxyPort = *port
	}

	router, cleanup, err := newProxyRouter(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := net.Listen("tcp", ":"+cfg.ProxyPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting proxy",
		slog.String("addr", ln.Addr().String()),
		slog.String("upstream", cfg.UpstreamURL),
		slog.Bool("safe_upstream", cfg.ProxySafeUpstream),
	)
	return serveProxy(ctx, ln, router, logger)
}

// newProxyRouter はプロキシのルーターを構築する。cleanupでレートリミッターを停止する。
func newProxyRouter(cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	var client *http.Client
	if cfg.ProxySafeUpstream {
		client = security.NewURLGuard().NewUpstreamClient(cfg.RequestTimeout)
	} else {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	proxy, err := handler.NewProxyHandler(client, cfg.UpstreamURL, cfg.ProxyHeaderPrefix, logger, collector)
	if err != nil {
		return nil, nil, err
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPerMinute), logger)

	router := handler.NewRouter(&handler.RouterDeps{
		Proxy:             proxy,
		RateLimiter:       rl,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            logger,
		Metrics:           collector,
		Gatherer:          reg,
	})
	return router, rl.Stop, nil
}

// serveProxy はctxが終了するまでlnでHTTPサーバーを動かし、終了時にグレースフルシャットダウンする。
func serveProxy(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down proxy...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("proxy stopped gracefully")
	return nil
}

// runHealthcheckCommand は設定ファイルと環境変数からプロキシのポートを解決してヘルスチェックする。
// 軽量サブコマンドのため、ログの初期化は行わない。
func runHealthcheckCommand(ctx context.Context, s Streams, args []string) error {
	fs, common := newFlagSet(CommandHealthcheck, s)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*common.configDir)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return runHealthcheck(ctx, "http://localhost:"+cfg.ProxyPort+"/health")
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
