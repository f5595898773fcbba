// Package rpcclient はプロシージャルーターを呼び出すHTTPクライアントを提供する。
//
// クライアントは2種類ある。Newが返す匿名クライアントは識別情報を
// 一切転送せず、保護プロシージャに対してはUNAUTHENTICATEDを受け取る。
// NewForwardingが返す転送クライアントは呼び出し元リクエストのCookieと
// 許可リスト済みヘッダーを全呼び出しに添付し、リモート側のセッション
// リゾルバーがページ自身と同じセッションを復元できるようにする。
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/wire"
)

// trpcPath はプロシージャトランスポートのマウントパス。
const trpcPath = "/trpc"

// Caller はプロシージャ呼び出しのインターフェース。
// 単発クライアントとバッチリンクの両方が実装する。
type Caller interface {
	Call(ctx context.Context, procedure string, input any, out any) error
}

// Client はプロシージャルーターのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	identity   *model.RequestIdentity // nilなら匿名クライアント
}

// New は識別情報を転送しない匿名クライアントを生成する。
// 公開プロシージャ専用。
func New(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// NewForwarding は呼び出し元の識別情報を転送するクライアントを生成する。
func NewForwarding(httpClient *http.Client, logger *slog.Logger, baseURL string, identity model.RequestIdentity) *Client {
	c := New(httpClient, logger, baseURL)
	c.identity = &identity
	return c
}

// Call はプロシージャを1回呼び出し、結果をoutにデコードする。
// outがnilの場合は結果を破棄する。サーバーからの構造化エラーは
// *model.RPCErrorとして返される。トランスポート障害は
// UPSTREAM_UNAVAILABLEになる。
func (c *Client) Call(ctx context.Context, procedure string, input any, out any) error {
	var body io.Reader
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("failed to encode input: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+trpcPath+"/"+procedure, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyIdentity(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("procedure call failed",
			slog.String("procedure", procedure),
			slog.String("error", err.Error()),
		)
		return model.NewUpstreamUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamUnavailableError("failed to read response body")
	}

	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("procedure returned malformed envelope",
			slog.String("procedure", procedure),
		)
		return model.NewUpstreamUnavailableError("malformed response envelope")
	}

	if env.Error != nil {
		return env.Error.ToRPCError()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return model.NewUpstreamUnavailableError("failed to decode procedure result")
	}
	return nil
}

// applyIdentity は転送クライアントの場合のみ識別情報ヘッダーを添付する。
// 転送対象はCookieと許可リスト済みヘッダーだけ。
func (c *Client) applyIdentity(req *http.Request) {
	if c.identity == nil {
		return
	}
	if c.identity.Cookie != "" {
		req.Header.Set("Cookie", c.identity.Cookie)
	}
	if c.identity.UserAgent != "" {
		req.Header.Set("User-Agent", c.identity.UserAgent)
	}
	if c.identity.Accept != "" {
		req.Header.Set("Accept", c.identity.Accept)
	}
}
