// Package authgw はサーバーサイドのセッション解決ゲートウェイを提供する。
//
// 生の識別情報（Cookie/ヘッダー）から信頼できるセッションへの変換は
// このパッケージのSessionResolverだけが行う。プロシージャルーターや
// ページハンドラーは解決済みのセッションのみを受け取る。
package authgw

import (
	"context"
	"net/http"

	"github.com/hitoshi/postboard/internal/model"
)

// SessionResolver は生の識別情報から検証済みセッションを解決する。
// セッションが存在しない場合は(nil, nil)を返す。
// 上流障害の場合はエラーを返すが、呼び出し側はこれを
// 「セッションなし」として扱う（フェイルクローズ）。
type SessionResolver interface {
	Resolve(ctx context.Context, identity model.RequestIdentity) (*model.Session, error)
}

// IdentityFromRequest はリクエストから識別情報を取り出す。
// 転送対象はCookieヘッダーと許可リスト済みヘッダーのみ。
func IdentityFromRequest(r *http.Request) model.RequestIdentity {
	return model.RequestIdentity{
		Cookie:    r.Header.Get("Cookie"),
		UserAgent: r.Header.Get("User-Agent"),
		Accept:    r.Header.Get("Accept"),
	}
}

// sessionTokenFromCookie は生のCookieヘッダーからセッショントークンを
// 取り出す。該当Cookieがなければ空文字列を返す。
func sessionTokenFromCookie(rawCookie, cookieName string) string {
	if rawCookie == "" {
		return ""
	}

	// net/httpのCookieパーサーを生ヘッダーに対して再利用する
	header := http.Header{}
	header.Set("Cookie", rawCookie)
	req := http.Request{Header: header}

	cookie, err := req.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
