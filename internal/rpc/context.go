package rpc

import (
	"context"

	"github.com/hitoshi/postboard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに解決済みセッションを
// 格納するためのキー。
var sessionContextKey = contextKey("session")

// ContextWithSession はコンテキストに解決済みセッションを注入する。
// ルーターは生の識別情報には触れず、ここで注入されたセッションのみを見る。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext はコンテキストから解決済みセッションを取得する。
// 未認証の場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok {
		return nil
	}
	return session
}
