package authgw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/postboard/internal/model"
)

// sessionPath は認証サービスのセッション解決エンドポイントのパス。
const sessionPath = "/api/auth/get-session"

// HTTPResolver は別プロセスの認証サービスにHTTPで問い合わせる実装。
// 識別情報のCookie/User-Agent/Acceptヘッダーをそのまま転送する。
type HTTPResolver struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewHTTPResolver はHTTPResolverを生成する。
// baseURLは認証サービスのベースURL（例: http://localhost:8080）。
func NewHTTPResolver(httpClient *http.Client, logger *slog.Logger, baseURL string) *HTTPResolver {
	return &HTTPResolver{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimSuffix(baseURL, "/") + sessionPath,
	}
}

// sessionPayload は認証サービスのレスポンス形式。
// 外部契約なのでこの場で定義し、認証サービスの実装には依存しない。
type sessionPayload struct {
	User struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"user"`
	Session struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		ExpiresAt time.Time `json:"expires_at"`
	} `json:"session"`
}

// Resolve は識別情報を認証サービスに転送してセッションを解決する。
// 401/404は明示的な「セッションなし」としてエラーなしで返す。
// 通信エラー・その他のステータス・不正なボディはエラーとして返し、
// 呼び出し側が匿名扱いにする。ctxのキャンセルで呼び出しは中断される。
func (r *HTTPResolver) Resolve(ctx context.Context, identity model.RequestIdentity) (*model.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}

	if identity.Cookie != "" {
		req.Header.Set("Cookie", identity.Cookie)
	}
	if identity.UserAgent != "" {
		req.Header.Set("User-Agent", identity.UserAgent)
	}
	if identity.Accept != "" {
		req.Header.Set("Accept", identity.Accept)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("auth service call failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		// 明示的な「セッションなし」シグナル
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		r.logger.Warn("auth service returned unexpected status",
			slog.Int("status", resp.StatusCode),
		)
		return nil, model.NewUpstreamUnavailableError(
			fmt.Sprintf("auth service returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamUnavailableError("failed to read auth service response")
	}

	var payload sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		r.logger.Warn("auth service returned malformed body", slog.String("error", err.Error()))
		return nil, model.NewUpstreamUnavailableError("malformed auth service response")
	}

	// ユーザーとセッションメタデータの同時存在は不変条件
	if payload.User.ID == "" || payload.Session.ID == "" {
		return nil, model.NewUpstreamUnavailableError("incomplete session payload")
	}

	return &model.Session{
		User: model.User{
			ID:        payload.User.ID,
			Name:      payload.User.Name,
			Email:     payload.User.Email,
			CreatedAt: payload.User.CreatedAt,
			UpdatedAt: payload.User.UpdatedAt,
		},
		Data: model.SessionData{
			ID:        payload.Session.ID,
			CreatedAt: payload.Session.CreatedAt,
			UpdatedAt: payload.Session.UpdatedAt,
			ExpiresAt: payload.Session.ExpiresAt,
		},
	}, nil
}
