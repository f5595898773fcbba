// Package model はドメインモデルを定義する。
package model

import "time"

// Post は投稿を表す。
// レコードストアが唯一の所有者であり、作成（追記）のみ可能。
// 更新・削除の操作は存在しない。
type Post struct {
	ID        string
	Title     string
	Content   string // サニタイズ済みHTML
	Author    string
	CreatedAt time.Time
}
