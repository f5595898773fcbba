package rpc

import (
	"encoding/json"

	"github.com/hitoshi/postboard/internal/model"
)

// byIDInput はposts.byIdの入力。
type byIDInput struct {
	ID *string `json:"id"`
}

func (in *byIDInput) validate() error {
	if in.ID == nil {
		return model.NewInvalidInputError("id", "idは必須項目です")
	}
	return nil
}

// byAuthorInput はposts.byAuthorの入力。
// 空文字列は有効であり、全投稿にマッチする。
type byAuthorInput struct {
	Author *string `json:"author"`
}

func (in *byAuthorInput) validate() error {
	if in.Author == nil {
		return model.NewInvalidInputError("author", "authorは必須項目です")
	}
	return nil
}

// createInput はposts.createの入力。各フィールドは必須かつ非空。
type createInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Author  *string `json:"author"`
}

func (in *createInput) validate() error {
	if in.Title == nil || *in.Title == "" {
		return model.NewInvalidInputError("title", "titleは1文字以上で指定してください")
	}
	if in.Content == nil || *in.Content == "" {
		return model.NewInvalidInputError("content", "contentは1文字以上で指定してください")
	}
	if in.Author == nil || *in.Author == "" {
		return model.NewInvalidInputError("author", "authorは1文字以上で指定してください")
	}
	return nil
}

// decodeInto は生JSONを入力構造体にデコードする。
// 入力が空の場合はゼロ値のまま（必須チェックはvalidateが行う）。
func decodeInto(input json.RawMessage, dst any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return model.NewInvalidInputError("", "入力JSONの解析に失敗しました")
	}
	return nil
}
