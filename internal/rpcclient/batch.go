package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/wire"
)

// BatchLink は同一フラッシュ枠内に発行された呼び出しを1回の
// トランスポート往復にまとめるリンク。
//
// これは性能上の契約であり正しさの契約ではない。バッチ境界を越えた
// 呼び出し順序に依存してはならず、各呼び出しの成否は独立している。
type BatchLink struct {
	client *Client
	window time.Duration

	mu      sync.Mutex
	pending []*pendingCall
}

// pendingCall はフラッシュ待ちの1呼び出し。
// ctxは呼び出し元のリクエスト寿命を持ち、キャンセル伝播に使われる。
type pendingCall struct {
	ctx       context.Context
	procedure string
	input     json.RawMessage
	done      chan callOutcome
}

// callOutcome はバッチ内の1呼び出しの結果。
type callOutcome struct {
	result json.RawMessage
	err    error
}

// NewBatchLink はBatchLinkを生成する。
// windowは最初の呼び出しからフラッシュまでの猶予時間。
func NewBatchLink(client *Client, window time.Duration) *BatchLink {
	return &BatchLink{
		client: client,
		window: window,
	}
}

// Call は呼び出しをキューに積み、バッチの結果を待って返す。
// ctxがキャンセルされた場合、未送信の呼び出しはキューから取り除かれ、
// 送信中のバッチは待ち手が全員いなくなった時点で中断される。
func (b *BatchLink) Call(ctx context.Context, procedure string, input any, out any) error {
	var raw json.RawMessage
	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("failed to encode input: %w", err)
		}
		raw = encoded
	}

	call := &pendingCall{
		ctx:       ctx,
		procedure: procedure,
		input:     raw,
		done:      make(chan callOutcome, 1),
	}

	b.mu.Lock()
	b.pending = append(b.pending, call)
	if len(b.pending) == 1 {
		// この枠の最初の呼び出しがフラッシュを予約する
		time.AfterFunc(b.window, b.flush)
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		b.remove(call)
		return model.NewUpstreamUnavailableError(ctx.Err().Error())
	case outcome := <-call.done:
		if outcome.err != nil {
			return outcome.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(outcome.result, out); err != nil {
			return model.NewUpstreamUnavailableError("failed to decode procedure result")
		}
		return nil
	}
}

// remove はフラッシュ前にキャンセルされた呼び出しをキューから外す。
// すでにフラッシュされていた場合は何もしない。
func (b *BatchLink) remove(call *pendingCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.pending {
		if p == call {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// flush は蓄積された呼び出しを1回のバッチリクエストとして送信する。
func (b *BatchLink) flush() {
	b.mu.Lock()
	calls := b.pending
	b.pending = nil
	b.mu.Unlock()

	// フラッシュ時点でキャンセル済みの呼び出しは送らない
	live := calls[:0]
	for _, call := range calls {
		if call.ctx.Err() == nil {
			live = append(live, call)
		}
	}
	calls = live
	if len(calls) == 0 {
		return
	}

	batch := make([]wire.BatchCall, len(calls))
	for i, call := range calls {
		batch[i] = wire.BatchCall{
			ID:        i,
			Procedure: call.procedure,
			Input:     call.input,
		}
	}

	// 待ち手が全員いなくなった場合は往復自体を中断する
	batchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan struct{})
	defer close(finished)

	var waiting atomic.Int32
	waiting.Store(int32(len(calls)))
	for _, call := range calls {
		go func(c *pendingCall) {
			select {
			case <-c.ctx.Done():
				if waiting.Add(-1) == 0 {
					cancel()
				}
			case <-finished:
			}
		}(call)
	}

	results, err := b.send(batchCtx, batch)
	if err != nil {
		for _, call := range calls {
			call.done <- callOutcome{err: err}
		}
		return
	}

	// IDで結果を対応付ける。欠落した呼び出しは上流障害として扱う
	byID := make(map[int]wire.BatchResult, len(results))
	for _, res := range results {
		byID[res.ID] = res
	}

	for i, call := range calls {
		res, ok := byID[i]
		if !ok {
			call.done <- callOutcome{err: model.NewUpstreamUnavailableError("missing batch result")}
			continue
		}
		if res.Error != nil {
			call.done <- callOutcome{err: res.Error.ToRPCError()}
			continue
		}
		call.done <- callOutcome{result: res.Result}
	}
}

// send はバッチリクエストを送信して結果配列を返す。
// ctxのキャンセルで送信中の往復は中断される。
func (b *BatchLink) send(ctx context.Context, batch []wire.BatchCall) ([]wire.BatchResult, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, model.NewUpstreamUnavailableError("failed to encode batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.client.baseURL+trpcPath, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewUpstreamUnavailableError("failed to build batch request")
	}
	req.Header.Set("Content-Type", "application/json")
	b.client.applyIdentity(req)

	resp, err := b.client.httpClient.Do(req)
	if err != nil {
		b.client.logger.Warn("batch call failed",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamUnavailableError("failed to read batch response")
	}

	var results []wire.BatchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		// バッチ全体の失敗はエンベロープで返ってくる
		var env wire.Envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Error != nil {
			return nil, env.Error.ToRPCError()
		}
		return nil, model.NewUpstreamUnavailableError("malformed batch response")
	}
	return results, nil
}
