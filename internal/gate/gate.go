// Package gate は保護ビュー向けの認可判定を提供する。
//
// ゲート自体はリダイレクトを実行せず、判定結果（Decision）を返す。
// レンダリングをどう打ち切るかは呼び出し側のHTTPハンドラーが決める。
// HTTP向けの定型処理としてRequireSessionヘルパーも提供する。
package gate

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/postboard/internal/authgw"
	"github.com/hitoshi/postboard/internal/model"
)

// redirectParam はリダイレクト先に元のパスを伝えるクエリパラメータ名。
const redirectParam = "redirect"

// Decision は認可判定の結果。
// Authenticated(Session) か RedirectRequired(Target) のいずれか一方。
type Decision struct {
	Session        *model.Session // 認証済みの場合のみ非nil
	RedirectTarget string         // リダイレクトが必要な場合のみ非空
}

// Authenticated は認証済みかどうかを返す。
func (d Decision) Authenticated() bool {
	return d.Session != nil
}

// Gate は認可判定を行う。
type Gate struct {
	loginPath string
}

// New はGateを生成する。loginPathは未認証時の誘導先（例: /login）。
func New(loginPath string) *Gate {
	return &Gate{loginPath: loginPath}
}

// Check はコンテキストのリクエストスコープセッションを解決して判定する。
// originalPathはリダイレクト後に戻るための元のリクエストパス。
// 解決失敗（上流障害含む）は匿名として扱われ、リダイレクト判定になる。
func (g *Gate) Check(ctx context.Context, originalPath string) Decision {
	session := g.Optional(ctx)
	if session == nil {
		return Decision{RedirectTarget: g.redirectTarget(originalPath)}
	}
	return Decision{Session: session}
}

// Optional はセッションがあれば返し、なければnilを返す。
// リダイレクトは行わない。認証状態で表示を変えるビューが使う。
func (g *Gate) Optional(ctx context.Context) *model.Session {
	rs := authgw.RequestSessionFromContext(ctx)
	if rs == nil {
		return nil
	}
	return rs.Session(ctx)
}

// RequireSession は保護ページの定型処理。未認証ならログインパスへの
// 303リダイレクトを書き込んでfalseを返す。認証済みならセッションを返す。
func (g *Gate) RequireSession(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	decision := g.Check(r.Context(), r.URL.Path)
	if !decision.Authenticated() {
		http.Redirect(w, r, decision.RedirectTarget, http.StatusSeeOther)
		return nil, false
	}
	return decision.Session, true
}

// redirectTarget はログインパスに戻り先パラメータを付けたURLを組み立てる。
func (g *Gate) redirectTarget(originalPath string) string {
	return g.loginPath + "?" + redirectParam + "=" + url.QueryEscape(originalPath)
}
