package authgw

import (
	"context"

	"github.com/hitoshi/postboard/internal/authsvc"
	"github.com/hitoshi/postboard/internal/model"
)

// LocalResolver は同一プロセス内の認証サービスを直接呼び出す実装。
// HTTP往復なしでセッションを解決する。
type LocalResolver struct {
	service *authsvc.Service
}

// NewLocalResolver はLocalResolverを生成する。
func NewLocalResolver(service *authsvc.Service) *LocalResolver {
	return &LocalResolver{service: service}
}

// Resolve はCookieヘッダーからセッショントークンを取り出し、
// プロセス内呼び出しでセッションを解決する。
func (r *LocalResolver) Resolve(ctx context.Context, identity model.RequestIdentity) (*model.Session, error) {
	token := sessionTokenFromCookie(identity.Cookie, authsvc.SessionCookieName)
	if token == "" {
		return nil, nil
	}
	return r.service.SessionByToken(ctx, token)
}
