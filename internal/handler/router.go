// Package handler はHTTPルーティングとミドルウェアチェーンを構成する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/postboard/internal/authgw"
	"github.com/hitoshi/postboard/internal/authsvc"
	"github.com/hitoshi/postboard/internal/metrics"
	"github.com/hitoshi/postboard/internal/middleware"
	"github.com/hitoshi/postboard/internal/page"
	"github.com/hitoshi/postboard/internal/rpc"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Resolver          authgw.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// プロシージャ
	RPC     *rpc.Router
	Metrics *metrics.Collector

	// 可観測性
	Registry prometheus.Gatherer

	// 認証サービス
	AuthHandler *authsvc.Handler

	// デモ画面
	Pages *page.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → SessionContext
//
// セッションコンテキストは遅延解決のため全ルートに適用してもコストはかからない。
// プロシージャルート（/trpc）にはレート制限とセッションの先行解決を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionContextMiddleware(deps.Resolver))

	// 死活監視とメトリクス
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler(deps.Registry))

	// 認証サービス（HTTPResolverの上流でもある）
	r.Mount("/api/auth", deps.AuthHandler.Routes())

	// プロシージャ呼び出し
	r.Route("/trpc", func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())
		r.Use(middleware.NewRPCSessionMiddleware())
		r.Mount("/", rpc.NewHTTPHandler(deps.RPC, deps.Metrics))
	})

	// デモ画面
	deps.Pages.Routes(r)

	return r
}
