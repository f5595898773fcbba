package authsvc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/postboard/internal/model"
)

// HandlerConfig は認証HTTPハンドラーの設定。
type HandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// Handler は認証サービスのHTTPハンドラー。
// セッション解決ゲートウェイ（HTTPResolver）の上流でもある。
type Handler struct {
	service *Service
	config  HandlerConfig
}

// NewHandler はHandlerを生成する。
func NewHandler(service *Service, config HandlerConfig) *Handler {
	return &Handler{service: service, config: config}
}

// Routes は認証関連のルーティングを設定したchi.Routerを返す。
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/sign-up", h.SignUp)
	r.Post("/sign-in", h.SignIn)
	r.Post("/sign-out", h.SignOut)
	r.Get("/get-session", h.GetSession)
	return r
}

// --- リクエスト/レスポンス型 ---

// signUpRequest はサインアップリクエストのボディ。
type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionPayload は解決済みセッションのワイヤ表現。
// ユーザーとセッションメタデータは常に両方含まれる。
type SessionPayload struct {
	User    UserPayload        `json:"user"`
	Session SessionMetaPayload `json:"session"`
}

// UserPayload はユーザーのワイヤ表現。
type UserPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionMetaPayload はセッションメタデータのワイヤ表現。
type SessionMetaPayload struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionPayload はドメインモデルからSessionPayloadを生成する。
func NewSessionPayload(s *model.Session) SessionPayload {
	return SessionPayload{
		User: UserPayload{
			ID:        s.User.ID,
			Name:      s.User.Name,
			Email:     s.User.Email,
			CreatedAt: s.User.CreatedAt,
			UpdatedAt: s.User.UpdatedAt,
		},
		Session: SessionMetaPayload{
			ID:        s.Data.ID,
			CreatedAt: s.Data.CreatedAt,
			UpdatedAt: s.Data.UpdatedAt,
			ExpiresAt: s.Data.ExpiresAt,
		},
	}
}

// ToModel はSessionPayloadをドメインモデルに戻す。
func (p SessionPayload) ToModel() *model.Session {
	return &model.Session{
		User: model.User{
			ID:        p.User.ID,
			Name:      p.User.Name,
			Email:     p.User.Email,
			CreatedAt: p.User.CreatedAt,
			UpdatedAt: p.User.UpdatedAt,
		},
		Data: model.SessionData{
			ID:        p.Session.ID,
			CreatedAt: p.Session.CreatedAt,
			UpdatedAt: p.Session.UpdatedAt,
			ExpiresAt: p.Session.ExpiresAt,
		},
	}
}

// SignUp はユーザー登録とセッション発行を行う。
// POST /api/auth/sign-up
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, session, err := h.service.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		slog.Warn("sign-up failed", slog.String("error", err.Error()))
		http.Error(w, "sign-up failed", http.StatusBadRequest)
		return
	}

	h.setSessionCookie(w, token)
	writeSessionPayload(w, session)
}

// SignIn は資格情報を照合してセッションCookieを設定する。
// POST /api/auth/sign-in
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	h.setSessionCookie(w, token)
	writeSessionPayload(w, session)
}

// SignOut はセッションを破棄しCookieを削除する。
// POST /api/auth/sign-out
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		h.service.SignOut(r.Context(), cookie.Value)
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetSession はCookieからセッションを解決して返す。
// セッション解決ゲートウェイが呼び出すエンドポイント。
// GET /api/auth/get-session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	session, err := h.service.SessionByToken(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("session lookup failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	writeSessionPayload(w, session)
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeSessionPayload はセッションをJSONで書き込む。
func writeSessionPayload(w http.ResponseWriter, session *model.Session) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NewSessionPayload(session))
}
