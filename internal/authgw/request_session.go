package authgw

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/postboard/internal/model"
)

// RequestSession は1リクエスト内のセッション解決結果をメモ化する。
//
// 同一リクエスト内で複数のコンポーネントが認証状態を問い合わせても、
// 外部認証サービスへの呼び出しは最大1回に抑えられる。スコープは
// 厳密に1リクエストであり、リクエストをまたいで共有してはならない。
type RequestSession struct {
	resolver SessionResolver
	identity model.RequestIdentity

	once     sync.Once
	resolved atomic.Bool
	session  *model.Session
}

// NewRequestSession はRequestSessionを生成する。解決はまだ行わない。
func NewRequestSession(resolver SessionResolver, identity model.RequestIdentity) *RequestSession {
	return &RequestSession{
		resolver: resolver,
		identity: identity,
	}
}

// Session はセッションを解決して返す。初回呼び出しでのみリゾルバーが
// 呼ばれ、以降はキャッシュされた結果を返す。
// 解決エラーは匿名（nil）に縮退する（フェイルクローズ）。
func (rs *RequestSession) Session(ctx context.Context) *model.Session {
	rs.once.Do(func() {
		defer rs.resolved.Store(true)

		session, err := rs.resolver.Resolve(ctx, rs.identity)
		if err != nil {
			slog.Warn("session resolution failed, treating caller as anonymous",
				slog.String("error", err.Error()),
			)
			return
		}
		rs.session = session
	})
	return rs.session
}

// Peek は解決済みの場合のみセッションを返す。
// 未解決の場合は解決を起動せずに(nil, false)を返す。
// アクセスログなど、解決の副作用を持ち込みたくない読み手のためにある。
func (rs *RequestSession) Peek() (*model.Session, bool) {
	if !rs.resolved.Load() {
		return nil, false
	}
	return rs.session, true
}

// Identity はこのリクエストの識別情報を返す。
// 保護プロシージャを呼ぶ転送クライアントの構築に使われる。
func (rs *RequestSession) Identity() model.RequestIdentity {
	return rs.identity
}

// requestSessionContextKey はコンテキストにRequestSessionを格納するキー。
type contextKey string

var requestSessionContextKey = contextKey("request_session")

// ContextWithRequestSession はコンテキストにRequestSessionを注入する。
func ContextWithRequestSession(ctx context.Context, rs *RequestSession) context.Context {
	return context.WithValue(ctx, requestSessionContextKey, rs)
}

// RequestSessionFromContext はコンテキストからRequestSessionを取得する。
// ミドルウェアを通過していないコンテキストではnilを返す。
func RequestSessionFromContext(ctx context.Context) *RequestSession {
	rs, ok := ctx.Value(requestSessionContextKey).(*RequestSession)
	if !ok {
		return nil
	}
	return rs
}
