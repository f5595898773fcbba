package wire

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/postboard/internal/model"
)

// Envelope は単一プロシージャ呼び出しのレスポンス。
// ResultとErrorは排他。
type Envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody は構造化エラーのワイヤ表現。
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewErrorBody は*model.RPCErrorからErrorBodyを生成する。
func NewErrorBody(err *model.RPCError) *ErrorBody {
	return &ErrorBody{
		Code:    err.Code,
		Message: err.Message,
		Field:   err.Field,
	}
}

// ToRPCError はErrorBodyをドメインエラーに戻す。
func (e *ErrorBody) ToRPCError() *model.RPCError {
	return &model.RPCError{
		Code:    e.Code,
		Message: e.Message,
		Field:   e.Field,
	}
}

// BatchCall はバッチリクエスト内の1呼び出し。
// IDはバッチ内で呼び出しと結果を対応付けるための連番。
type BatchCall struct {
	ID        int             `json:"id"`
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// BatchResult はバッチレスポンス内の1結果。
// レスポンス配列の順序はリクエスト配列の順序と一致する。
type BatchResult struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// StatusForCode はエラーコードに対応するHTTPステータスコードを返す。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeOperationNotFound, model.ErrCodePostNotFound:
		return http.StatusNotFound
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
