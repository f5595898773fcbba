package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/postboard/internal/authgw"
	"github.com/hitoshi/postboard/internal/authsvc"
	"github.com/hitoshi/postboard/internal/config"
	"github.com/hitoshi/postboard/internal/gate"
	"github.com/hitoshi/postboard/internal/handler"
	"github.com/hitoshi/postboard/internal/logger"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/page"
	"github.com/hitoshi/postboard/internal/rpc"
	"github.com/hitoshi/postboard/internal/rpcclient"
	"github.com/hitoshi/postboard/internal/security"
	"github.com/hitoshi/postboard/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return runServe(cfg)
}

// runServe はサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストアとプロシージャルーターの初期化
	postStore := store.NewSeededPostStore()
	sanitizer := security.NewContentSanitizer()
	rpcRouter := rpc.NewRouter(postStore, sanitizer)

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 認証サービスとセッションリゾルバーの初期化。
	// AUTH_SERVICE_URLが設定されていれば外部サービスにHTTPで問い合わせ、
	// 未設定ならプロセス内の認証サービスで解決する。
	authService := authsvc.NewService(authsvc.Config{SessionMaxAge: cfg.SessionMaxAge})
	authHandler := authsvc.NewHandler(authService, authsvc.HandlerConfig{
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	})

	var resolver authgw.SessionResolver
	if cfg.AuthServiceURL != "" {
		resolver = authgw.NewHTTPResolver(
			&http.Client{Timeout: cfg.RPCTimeout},
			slog.Default(),
			cfg.AuthServiceURL,
		)
		slog.Info("session resolution via external auth service",
			slog.String("auth_service_url", cfg.AuthServiceURL),
		)
	} else {
		resolver = authgw.NewLocalResolver(authService)
		slog.Info("session resolution via in-process auth service")
	}
	resolver = authgw.NewInstrumentedResolver(resolver, collector)

	// 4. 画面ハンドラーの構築。保護データの取得はHTTP経由の
	// 自己呼び出しで行い、リクエストの識別情報を転送する。
	// バッチリンク経由にすることで、同一画面内の連続呼び出しは
	// ウィンドウ内で1往復にまとめられる。
	rpcHTTPClient := &http.Client{Timeout: cfg.RPCTimeout}
	newForwardingCaller := func(identity model.RequestIdentity) rpcclient.Caller {
		forwarding := rpcclient.NewForwarding(rpcHTTPClient, slog.Default(), cfg.BaseURL, identity)
		return rpcclient.NewBatchLink(forwarding, cfg.BatchWindow)
	}
	pages := page.NewHandler(
		slog.Default(), rpcRouter, gate.New("/login"), authService,
		newForwardingCaller,
		page.Config{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
	)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitRPC > 0 {
		// configのRateLimitRPCはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.RPCRate = rate.Limit(float64(cfg.RateLimitRPC) / 60.0)
		rateLimiterCfg.RPCBurst = cfg.RateLimitRPC
	}
	limiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Resolver:          resolver,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		RPC:               rpcRouter,
		Metrics:           collector,
		Registry:          registry,
		AuthHandler:       authHandler,
		Pages:             pages,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
