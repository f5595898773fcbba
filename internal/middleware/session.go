// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"net/http"

	"github.com/hitoshi/postboard/internal/authgw"
	"github.com/hitoshi/postboard/internal/rpc"
)

// NewSessionContextMiddleware はリクエストスコープのセッション解決器を
// コンテキストに注入するミドルウェアを返す。
// 解決は遅延実行されるため、セッションを参照しないリクエストでは
// 上流への問い合わせは一切発生しない。
func NewSessionContextMiddleware(resolver authgw.SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rs := authgw.NewRequestSession(resolver, authgw.IdentityFromRequest(r))
			ctx := authgw.ContextWithRequestSession(r.Context(), rs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRPCSessionMiddleware はプロシージャ呼び出しの前にセッションを解決し、
// 解決済みセッションをコンテキストに載せるミドルウェアを返す。
// 未認証でも呼び出しは通す。保護プロシージャの拒否はルーター側で行う。
// NewSessionContextMiddlewareの後に配置する必要がある。
func NewRPCSessionMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if rs := authgw.RequestSessionFromContext(ctx); rs != nil {
				if session := rs.Session(ctx); session != nil {
					ctx = rpc.ContextWithSession(ctx, session)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
