package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/wire"
)

// CallRecorder はトランスポートが使用するメトリクス記録のインターフェース。
type CallRecorder interface {
	// RecordProcedureCall はプロシージャ呼び出しの結果とレイテンシを記録する。
	// codeは成功時 "ok"、失敗時はエラーコード。
	RecordProcedureCall(procedure, code string, duration time.Duration)
	// RecordBatchSize はバッチリクエストに含まれた呼び出し数を記録する。
	RecordBatchSize(size int)
}

// maxBatchCalls は1バッチあたりの呼び出し数の上限。
const maxBatchCalls = 50

// httpTransport はルーターのHTTPトランスポート。
// プロシージャ名・入力形・エラー種別はプロセス内呼び出しと完全に一致する。
type httpTransport struct {
	router   *Router
	recorder CallRecorder
}

// NewHTTPHandler はルーターをHTTPトランスポートとして公開するハンドラーを返す。
//
// ルーティング:
//
//	GET  /{procedure}?input=<json> - query呼び出し
//	POST /{procedure}              - query/mutation呼び出し（ボディが入力）
//	POST /                         - バッチ呼び出し
//
// recorderはnilでもよい（メトリクスなしで動作する）。
func NewHTTPHandler(router *Router, recorder CallRecorder) http.Handler {
	t := &httpTransport{router: router, recorder: recorder}

	r := chi.NewRouter()
	r.Get("/{procedure}", t.handleSingle)
	r.Post("/{procedure}", t.handleSingle)
	r.Post("/", t.handleBatch)
	return r
}

// handleSingle は単一プロシージャ呼び出しを処理する。
func (t *httpTransport) handleSingle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "procedure")

	// mutationの自動リプレイを防ぐため、GETでの呼び出しは拒否する
	if p, ok := t.router.lookup(name); ok && p.kind == KindMutation && r.Method == http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, &model.RPCError{
			Code:    model.ErrCodeInvalidInput,
			Message: "mutationはPOSTで呼び出してください",
		})
		return
	}

	input, err := readInput(r)
	if err != nil {
		t.record(name, model.ErrCodeInvalidInput, 0)
		writeRPCError(w, model.NewInvalidInputError("", "入力の読み取りに失敗しました"))
		return
	}

	start := time.Now()
	result, err := t.router.Call(r.Context(), name, input)
	elapsed := time.Since(start)

	if err != nil {
		t.record(name, errorCode(err), elapsed)
		writeCallError(w, name, err)
		return
	}

	t.record(name, "ok", elapsed)
	writeResult(w, result)
}

// handleBatch はバッチ呼び出しを処理する。
// レスポンス配列の順序はリクエスト配列に一致し、各要素の失敗は独立している。
func (t *httpTransport) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, model.NewInvalidInputError("", "リクエストボディの読み取りに失敗しました"))
		return
	}

	var calls []wire.BatchCall
	if err := json.Unmarshal(body, &calls); err != nil {
		writeRPCError(w, model.NewInvalidInputError("", "バッチリクエストの解析に失敗しました"))
		return
	}
	if len(calls) == 0 {
		writeRPCError(w, model.NewInvalidInputError("", "バッチに呼び出しが含まれていません"))
		return
	}
	if len(calls) > maxBatchCalls {
		writeRPCError(w, model.NewInvalidInputError("", "バッチの呼び出し数が上限を超えています"))
		return
	}

	if t.recorder != nil {
		t.recorder.RecordBatchSize(len(calls))
	}

	results := make([]wire.BatchResult, len(calls))
	for i, call := range calls {
		start := time.Now()
		out, err := t.router.Call(r.Context(), call.Procedure, call.Input)
		elapsed := time.Since(start)

		if err != nil {
			t.record(call.Procedure, errorCode(err), elapsed)
			results[i] = wire.BatchResult{ID: call.ID, Error: wire.NewErrorBody(toRPCError(err))}
			continue
		}

		raw, err := json.Marshal(out)
		if err != nil {
			slog.Error("failed to encode procedure result",
				slog.String("procedure", call.Procedure),
				slog.String("error", err.Error()),
			)
			results[i] = wire.BatchResult{ID: call.ID, Error: &wire.ErrorBody{
				Code:    "INTERNAL_ERROR",
				Message: "結果のエンコードに失敗しました",
			}}
			continue
		}

		t.record(call.Procedure, "ok", elapsed)
		results[i] = wire.BatchResult{ID: call.ID, Result: raw}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// readInput はHTTPリクエストからプロシージャ入力を取り出す。
// GETはinputクエリパラメータ、POSTはボディを入力とする。
func readInput(r *http.Request) (json.RawMessage, error) {
	if r.Method == http.MethodGet {
		raw := r.URL.Query().Get("input")
		if raw == "" {
			return nil, nil
		}
		return json.RawMessage(raw), nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// record はメトリクスレコーダーが設定されている場合のみ記録する。
func (t *httpTransport) record(procedure, code string, d time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordProcedureCall(procedure, code, d)
	}
}

// errorCode はエラーからメトリクス用のコードを取り出す。
func errorCode(err error) string {
	if rpcErr, ok := model.AsRPCError(err); ok {
		return rpcErr.Code
	}
	return "INTERNAL_ERROR"
}

// toRPCError は任意のエラーをワイヤに載せられる構造化エラーに変換する。
// 構造化されていないエラーの詳細はログにのみ残し、呼び出し元には
// 一般的なメッセージを返す。
func toRPCError(err error) *model.RPCError {
	if rpcErr, ok := model.AsRPCError(err); ok {
		return rpcErr
	}
	slog.Error("unstructured procedure error", slog.String("error", err.Error()))
	return &model.RPCError{
		Code:    "INTERNAL_ERROR",
		Message: "内部エラーが発生しました。",
	}
}

// writeCallError は単一呼び出しの失敗レスポンスを書き込む。
func writeCallError(w http.ResponseWriter, procedure string, err error) {
	rpcErr := toRPCError(err)
	slog.Warn("procedure call failed",
		slog.String("procedure", procedure),
		slog.String("code", rpcErr.Code),
	)
	writeError(w, wire.StatusForCode(rpcErr.Code), rpcErr)
}

// writeResult は成功レスポンスを書き込む。
func writeResult(w http.ResponseWriter, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to encode procedure result", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, &model.RPCError{
			Code:    "INTERNAL_ERROR",
			Message: "結果のエンコードに失敗しました",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wire.Envelope{Result: raw})
}

// writeRPCError はエラーコードに対応するステータスでエラーを書き込む。
func writeRPCError(w http.ResponseWriter, rpcErr *model.RPCError) {
	writeError(w, wire.StatusForCode(rpcErr.Code), rpcErr)
}

// writeError は統一エラーフォーマットでレスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, rpcErr *model.RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wire.Envelope{Error: wire.NewErrorBody(rpcErr)})
}
