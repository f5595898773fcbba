// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// RPCError はプロシージャ呼び出しの構造化エラーを表す。
// バリデーション失敗時はFieldに対象フィールド名を保持する。
type RPCError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
	Field   string // INVALID_INPUTの場合のみ設定される
}

// Error はerrorインターフェースを実装する。
func (e *RPCError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// ErrCodeInvalidInput は入力が構造検証に失敗したことを表す。
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeUnauthenticated は保護プロシージャがセッションなしで呼ばれたことを表す。
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	// ErrCodeOperationNotFound は未宣言のプロシージャ名が指定されたことを表す。
	// リソース未検出（POST_NOT_FOUND）とは区別される。
	ErrCodeOperationNotFound = "OPERATION_NOT_FOUND"
	// ErrCodePostNotFound は指定されたIDの投稿が存在しないことを表す。
	ErrCodePostNotFound = "POST_NOT_FOUND"
	// ErrCodeUpstreamUnavailable は外部認証サービスまたはRPCトランスポートの
	// 失敗・タイムアウト・不正レスポンスを表す。
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// NewInvalidInputError は入力検証エラーを生成する。
func NewInvalidInputError(field, reason string) *RPCError {
	return &RPCError{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("入力が無効です: %s", reason),
		Field:   field,
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *RPCError {
	return &RPCError{
		Code:    ErrCodeUnauthenticated,
		Message: "認証が必要です。ログインしてください。",
	}
}

// NewOperationNotFoundError はプロシージャ未検出エラーを生成する。
func NewOperationNotFoundError(name string) *RPCError {
	return &RPCError{
		Code:    ErrCodeOperationNotFound,
		Message: fmt.Sprintf("指定されたプロシージャは存在しません: %s", name),
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *RPCError {
	return &RPCError{
		Code:    ErrCodePostNotFound,
		Message: fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
	}
}

// NewUpstreamUnavailableError は上流サービス障害エラーを生成する。
func NewUpstreamUnavailableError(reason string) *RPCError {
	return &RPCError{
		Code:    ErrCodeUpstreamUnavailable,
		Message: fmt.Sprintf("上流サービスの呼び出しに失敗しました: %s", reason),
	}
}

// AsRPCError はエラーチェーンから*RPCErrorを取り出す。
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}
