// Package wire はRPCのワイヤ表現を定義する。
//
// タイムスタンプはJSONネイティブ型では文字列と区別できないため、
// 型タグ付きオブジェクトとしてエンコードする。サーバーとリモート
// クライアントの間で値を損失なく往復させるための共通語彙。
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// timestampType はタイムスタンプ値の型タグ。
const timestampType = "timestamp"

// Timestamp はワイヤ上で文字列と区別可能なタイムスタンプ。
// {"__type":"timestamp","value":"<RFC3339Nano>"} としてエンコードされる。
type Timestamp struct {
	time.Time
}

// NewTimestamp はTimestampを生成する。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// taggedValue は型タグ付き値のワイヤ表現。
type taggedValue struct {
	Type  string `json:"__type"`
	Value string `json:"value"`
}

// MarshalJSON はjson.Marshalerを実装する。
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedValue{
		Type:  timestampType,
		Value: t.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// 型タグのない値（素の文字列など）はエラーになる。
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var tagged taggedValue
	if err := json.Unmarshal(b, &tagged); err != nil {
		return fmt.Errorf("タイムスタンプのデコードに失敗しました: %w", err)
	}
	if tagged.Type != timestampType {
		return fmt.Errorf("タイムスタンプの型タグが不正です: %q", tagged.Type)
	}
	parsed, err := time.Parse(time.RFC3339Nano, tagged.Value)
	if err != nil {
		return fmt.Errorf("タイムスタンプの値が不正です: %w", err)
	}
	t.Time = parsed
	return nil
}
