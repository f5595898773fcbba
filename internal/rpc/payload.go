package rpc

import (
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/wire"
)

// PostPayload は投稿のワイヤ表現。
type PostPayload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Author    string         `json:"author"`
	CreatedAt wire.Timestamp `json:"created_at"`
}

// NewPostPayload はドメインモデルからPostPayloadを生成する。
func NewPostPayload(p model.Post) PostPayload {
	return PostPayload{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Author:    p.Author,
		CreatedAt: wire.NewTimestamp(p.CreatedAt),
	}
}

// UserPayload はユーザーのワイヤ表現。
type UserPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	CreatedAt wire.Timestamp `json:"created_at"`
	UpdatedAt wire.Timestamp `json:"updated_at"`
}

// NewUserPayload はドメインモデルからUserPayloadを生成する。
func NewUserPayload(u model.User) UserPayload {
	return UserPayload{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: wire.NewTimestamp(u.CreatedAt),
		UpdatedAt: wire.NewTimestamp(u.UpdatedAt),
	}
}

// PrivateDataPayload はprivateDataの結果。
type PrivateDataPayload struct {
	Message string      `json:"message"`
	User    UserPayload `json:"user"`
}

// ServerTimePayload はserverTimeの結果。
// タイムスタンプ値の損失なし転送のデモに使われる。
type ServerTimePayload struct {
	Timestamp wire.Timestamp `json:"timestamp"`
	Timezone  string         `json:"timezone"`
}
