// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証サービス側が所有するデータであり、このシステムは解決済みの
// スナップショットとして1リクエストの間だけ保持する。
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionData はセッション自体のメタデータを表す。
type SessionData struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Session は解決済みのセッションを表す。
// UserとDataは認証サービスから常に同時に解決される。
// 片方だけが設定された状態は存在しない。
type Session struct {
	User User
	Data SessionData
}

// RequestIdentity は未解決の呼び出し元識別情報を表す。
// Cookieヘッダーと、認証サービスや保護プロシージャへの転送に必要な
// 許可リスト済みヘッダーのみを保持する。寿命は1リクエスト。
type RequestIdentity struct {
	Cookie    string
	UserAgent string
	Accept    string
}
