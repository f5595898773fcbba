package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/security"
	"github.com/hitoshi/postboard/internal/store"
	"github.com/hitoshi/postboard/internal/wire"
)

// プロシージャ名の定数。閉じた集合としてここで全件宣言する。
const (
	ProcHealthCheck   = "healthCheck"
	ProcPrivateData   = "privateData"
	ProcPostsList     = "posts.list"
	ProcPostsByID     = "posts.byId"
	ProcPostsByAuthor = "posts.byAuthor"
	ProcPostsCreate   = "posts.create"
	ProcServerTime    = "serverTime"
)

// Router は宣言済みプロシージャへのディスパッチを行う。
// 保護プロシージャのセッション検査はハンドラー実行前に行われ、
// バリデーション失敗はハンドラー本体に到達する前に短絡する。
type Router struct {
	store     *store.PostStore
	sanitizer security.ContentSanitizerService
	procs     map[string]procedure
	now       func() time.Time
}

// NewRouter はRouterを生成する。
func NewRouter(postStore *store.PostStore, sanitizer security.ContentSanitizerService) *Router {
	r := &Router{
		store:     postStore,
		sanitizer: sanitizer,
		now:       time.Now,
	}
	r.procs = map[string]procedure{
		ProcHealthCheck: {
			name:    ProcHealthCheck,
			kind:    KindQuery,
			access:  AccessPublic,
			handler: r.healthCheck,
		},
		ProcPrivateData: {
			name:    ProcPrivateData,
			kind:    KindQuery,
			access:  AccessProtected,
			handler: r.privateData,
		},
		ProcPostsList: {
			name:    ProcPostsList,
			kind:    KindQuery,
			access:  AccessPublic,
			handler: r.postsList,
		},
		ProcPostsByID: {
			name:    ProcPostsByID,
			kind:    KindQuery,
			access:  AccessPublic,
			handler: r.postsByID,
		},
		ProcPostsByAuthor: {
			name:    ProcPostsByAuthor,
			kind:    KindQuery,
			access:  AccessPublic,
			handler: r.postsByAuthor,
		},
		ProcPostsCreate: {
			name:    ProcPostsCreate,
			kind:    KindMutation,
			access:  AccessPublic,
			handler: r.postsCreate,
		},
		ProcServerTime: {
			name:    ProcServerTime,
			kind:    KindQuery,
			access:  AccessPublic,
			handler: r.serverTime,
		},
	}
	return r
}

// Call は名前でプロシージャを解決して実行する。
// 未宣言の名前はOPERATION_NOT_FOUND、保護プロシージャへの
// セッションなし呼び出しはUNAUTHENTICATEDで失敗する。
func (r *Router) Call(ctx context.Context, name string, input json.RawMessage) (any, error) {
	p, ok := r.procs[name]
	if !ok {
		return nil, model.NewOperationNotFoundError(name)
	}
	if p.access == AccessProtected && SessionFromContext(ctx) == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return p.handler(ctx, input)
}

// lookup はトランスポート層向けにプロシージャ定義を返す。
func (r *Router) lookup(name string) (procedure, bool) {
	p, ok := r.procs[name]
	return p, ok
}

// --- ハンドラー実装 ---

// healthCheck は定数の生存マーカーを返す。
func (r *Router) healthCheck(_ context.Context, _ json.RawMessage) (any, error) {
	return "OK", nil
}

// privateData はコンテキストのセッションからユーザー情報を返す。
// セッション検査はCallで済んでいるためここでは非nilが保証される。
func (r *Router) privateData(ctx context.Context, _ json.RawMessage) (any, error) {
	session := SessionFromContext(ctx)
	return PrivateDataPayload{
		Message: "This is private",
		User:    NewUserPayload(session.User),
	}, nil
}

// postsList は全投稿を作成順で返す。
func (r *Router) postsList(_ context.Context, _ json.RawMessage) (any, error) {
	posts := r.store.List()
	payloads := make([]PostPayload, len(posts))
	for i, p := range posts {
		payloads[i] = NewPostPayload(p)
	}
	return payloads, nil
}

// postsByID はIDが一致する投稿を返す。
func (r *Router) postsByID(_ context.Context, input json.RawMessage) (any, error) {
	var in byIDInput
	if err := decodeInto(input, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	post, ok := r.store.Find(*in.ID)
	if !ok {
		return nil, model.NewPostNotFoundError(*in.ID)
	}
	return NewPostPayload(post), nil
}

// postsByAuthor は著者名の部分一致で投稿を絞り込む。
// 結果が空でもエラーにはならない。
func (r *Router) postsByAuthor(_ context.Context, input json.RawMessage) (any, error) {
	var in byAuthorInput
	if err := decodeInto(input, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	posts := r.store.FilterByAuthor(*in.Author)
	payloads := make([]PostPayload, len(posts))
	for i, p := range posts {
		payloads[i] = NewPostPayload(p)
	}
	return payloads, nil
}

// postsCreate は投稿を追記する。バリデーション失敗時は
// ストアへの書き込みは一切行われない。
func (r *Router) postsCreate(_ context.Context, input json.RawMessage) (any, error) {
	var in createInput
	if err := decodeInto(input, &in); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	content := r.sanitizer.Sanitize(*in.Content)
	post := r.store.Create(*in.Title, content, *in.Author)
	return NewPostPayload(post), nil
}

// serverTime は現在時刻と解決済みタイムゾーンを返す。
// 非決定的な値であり、キャッシュ対象ではない。
func (r *Router) serverTime(_ context.Context, _ json.RawMessage) (any, error) {
	now := r.now()
	zone := now.Location().String()
	if zone == "Local" {
		zone, _ = now.Zone()
	}
	return ServerTimePayload{
		Timestamp: wire.NewTimestamp(now),
		Timezone:  zone,
	}, nil
}
