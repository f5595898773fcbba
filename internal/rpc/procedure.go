// Package rpc は型付きプロシージャルーターを提供する。
//
// プロシージャは静的に宣言された閉じた集合であり、文字列名による
// 動的ディスパッチではなく固定テーブルで解決される。各プロシージャは
// query/mutationとpublic/protectedのタグを持ち、入力は宣言された形に
// 対して構造検証されてからハンドラーに渡される。
package rpc

import (
	"context"
	"encoding/json"
)

// Kind はプロシージャの種別を表す。
type Kind string

const (
	// KindQuery は副作用のない読み取り操作。
	KindQuery Kind = "query"
	// KindMutation は副作用のある書き込み操作。自動リプレイは安全でない。
	KindMutation Kind = "mutation"
)

// Access はプロシージャの公開範囲を表す。
type Access string

const (
	// AccessPublic はセッションなしで呼び出せる。
	AccessPublic Access = "public"
	// AccessProtected はコンテキストに解決済みセッションが必要。
	AccessProtected Access = "protected"
)

// procedure は宣言済みプロシージャ1件の定義。
// handlerは検証済みの入力でのみ呼び出される。
type procedure struct {
	name    string
	kind    Kind
	access  Access
	handler func(ctx context.Context, input json.RawMessage) (any, error)
}
