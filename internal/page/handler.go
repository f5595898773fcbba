// Package page はサーバーサイドレンダリングのデモ画面を提供する。
// 画面はすべてプロシージャ呼び出しの上に構築され、
// ストアや認証サービスへ直接アクセスしない。
package page

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/postboard/internal/authgw"
	"github.com/hitoshi/postboard/internal/authsvc"
	"github.com/hitoshi/postboard/internal/gate"
	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/rpc"
	"github.com/hitoshi/postboard/internal/rpcclient"
	"github.com/hitoshi/postboard/internal/wire"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ProcedureCaller は画面が必要とするプロシージャ呼び出しインターフェース。
// rpc.Routerの部分集合として定義する。
type ProcedureCaller interface {
	Call(ctx context.Context, name string, input json.RawMessage) (any, error)
}

// Authenticator はログイン画面が必要とする認証インターフェース。
// authsvc.Serviceの部分集合として定義する。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (string, *model.Session, error)
	SignOut(ctx context.Context, token string)
}

// CallerFactory はリクエストの識別情報を転送するプロシージャクライアントを
// 生成する。プロフィール画面がHTTP経由の自己呼び出しに使う。
type CallerFactory func(identity model.RequestIdentity) rpcclient.Caller

// Config は画面ハンドラーの設定。
type Config struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// Handler はデモ画面のHTTPハンドラー。
type Handler struct {
	logger     *slog.Logger
	procedures ProcedureCaller
	gate       *gate.Gate
	auth       Authenticator
	newCaller  CallerFactory
	config     Config
	templates  *template.Template
}

// NewHandler はHandlerを生成する。テンプレートの解析失敗はパニックになる。
func NewHandler(logger *slog.Logger, procedures ProcedureCaller, g *gate.Gate, auth Authenticator, newCaller CallerFactory, config Config) *Handler {
	return &Handler{
		logger:     logger,
		procedures: procedures,
		gate:       g,
		auth:       auth,
		newCaller:  newCaller,
		config:     config,
		templates:  template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

// Routes は画面のルーティングをrに登録する。
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Home)
	r.Get("/posts", h.Posts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{id}", h.PostDetail)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/dashboard/profile", h.Profile)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
}

// --- ビューモデル ---

// postView は画面向けの投稿表現。Contentはサニタイズ済みHTML。
type postView struct {
	ID        string
	Title     string
	Author    string
	CreatedAt string
	Content   template.HTML
}

func newPostView(p rpc.PostPayload) postView {
	return postView{
		ID:        p.ID,
		Title:     p.Title,
		Author:    p.Author,
		CreatedAt: formatTime(p.CreatedAt.Time),
		Content:   template.HTML(p.Content),
	}
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// --- 画面ハンドラー ---

// Home はトップページを表示する。
// セッションは任意で、未認証でも投稿一覧は見える。
// GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	session := h.gate.Optional(r.Context())

	result, err := h.procedures.Call(r.Context(), rpc.ProcPostsList, nil)
	if err != nil {
		h.renderError(w, err)
		return
	}
	payloads, ok := result.([]rpc.PostPayload)
	if !ok {
		h.renderError(w, nil)
		return
	}

	views := make([]postView, len(payloads))
	for i, p := range payloads {
		views[i] = newPostView(p)
	}

	h.render(w, http.StatusOK, "home.html", map[string]any{
		"Session": session,
		"Posts":   views,
	})
}

// postsPageData は投稿一覧画面のデータ。作成フォームの再表示値を含む。
type postsPageData struct {
	Posts        []postView
	AuthorFilter string
	FormError    string
	FormTitle    string
	FormAuthor   string
	FormContent  string
}

// Posts は投稿一覧と作成フォームを表示する。
// ?author= が指定された場合は著者名の部分一致で絞り込む。
// GET /posts
func (h *Handler) Posts(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")

	views, err := h.listPosts(r.Context(), author)
	if err != nil {
		h.renderError(w, err)
		return
	}

	h.render(w, http.StatusOK, "posts.html", postsPageData{
		Posts:        views,
		AuthorFilter: author,
	})
}

// listPosts は絞り込み条件に応じてposts.listまたはposts.byAuthorを呼ぶ。
func (h *Handler) listPosts(ctx context.Context, author string) ([]postView, error) {
	var (
		result any
		err    error
	)
	if author == "" {
		result, err = h.procedures.Call(ctx, rpc.ProcPostsList, nil)
	} else {
		input, _ := json.Marshal(map[string]string{"author": author})
		result, err = h.procedures.Call(ctx, rpc.ProcPostsByAuthor, input)
	}
	if err != nil {
		return nil, err
	}

	payloads, ok := result.([]rpc.PostPayload)
	if !ok {
		return nil, model.NewUpstreamUnavailableError("unexpected procedure result")
	}
	views := make([]postView, len(payloads))
	for i, p := range payloads {
		views[i] = newPostView(p)
	}
	return views, nil
}

// CreatePost は作成フォームの送信を処理する。
// バリデーションエラーは入力値を保持したままフォームに再表示する。
// POST /posts
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, model.NewInvalidInputError("form", "フォームの解析に失敗しました。"))
		return
	}
	title := r.PostFormValue("title")
	content := r.PostFormValue("content")
	author := r.PostFormValue("author")

	input, _ := json.Marshal(map[string]string{
		"title":   title,
		"content": content,
		"author":  author,
	})
	result, err := h.procedures.Call(r.Context(), rpc.ProcPostsCreate, input)
	if err != nil {
		rpcErr, ok := model.AsRPCError(err)
		if !ok || rpcErr.Code != model.ErrCodeInvalidInput {
			h.renderError(w, err)
			return
		}

		views, listErr := h.listPosts(r.Context(), "")
		if listErr != nil {
			h.renderError(w, listErr)
			return
		}
		h.render(w, http.StatusBadRequest, "posts.html", postsPageData{
			Posts:       views,
			FormError:   rpcErr.Message,
			FormTitle:   title,
			FormAuthor:  author,
			FormContent: content,
		})
		return
	}

	created, ok := result.(rpc.PostPayload)
	if !ok {
		h.renderError(w, nil)
		return
	}
	http.Redirect(w, r, "/posts/"+created.ID, http.StatusSeeOther)
}

// PostDetail は投稿詳細を表示する。存在しないIDは404ページになる。
// GET /posts/:id
func (h *Handler) PostDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	input, _ := json.Marshal(map[string]string{"id": id})
	result, err := h.procedures.Call(r.Context(), rpc.ProcPostsByID, input)
	if err != nil {
		h.renderError(w, err)
		return
	}
	payload, ok := result.(rpc.PostPayload)
	if !ok {
		h.renderError(w, nil)
		return
	}

	view := newPostView(payload)
	h.render(w, http.StatusOK, "post.html", map[string]any{
		"Post":      view,
		"CreatedAt": view.CreatedAt,
		"Content":   view.Content,
	})
}

// Dashboard は認証必須のダッシュボードを表示する。
// 未認証はログイン画面へリダイレクトされる。
// GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.gate.RequireSession(w, r)
	if !ok {
		return
	}

	ctx := rpc.ContextWithSession(r.Context(), session)
	result, err := h.procedures.Call(ctx, rpc.ProcServerTime, nil)
	if err != nil {
		h.renderError(w, err)
		return
	}
	payload, ok := result.(rpc.ServerTimePayload)
	if !ok {
		h.renderError(w, nil)
		return
	}

	h.render(w, http.StatusOK, "dashboard.html", map[string]any{
		"Session":    session,
		"ServerTime": payload.Timestamp.Format(time.RFC3339Nano),
		"Timezone":   payload.Timezone,
	})
}

// Profile は保護プロシージャをHTTP経由の自己呼び出しで取得して表示する。
// リクエストの識別情報（Cookie等）を転送クライアントに引き継ぐ。
// GET /dashboard/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate.RequireSession(w, r); !ok {
		return
	}

	caller := h.newCaller(authgw.IdentityFromRequest(r))

	var payload rpc.PrivateDataPayload
	if err := caller.Call(r.Context(), rpc.ProcPrivateData, nil, &payload); err != nil {
		h.renderError(w, err)
		return
	}

	h.render(w, http.StatusOK, "profile.html", map[string]any{
		"Message":   payload.Message,
		"User":      payload.User,
		"CreatedAt": formatTime(payload.User.CreatedAt.Time),
	})
}

// LoginForm はログインフォームを表示する。
// GET /login?redirect=/dashboard
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", map[string]any{
		"Redirect": safeRedirect(r.URL.Query().Get("redirect")),
		"Email":    "",
	})
}

// Login はログインフォームの送信を処理する。
// 成功時はセッションCookieを設定してリダイレクト先に戻す。
// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, model.NewInvalidInputError("form", "フォームの解析に失敗しました。"))
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	redirect := safeRedirect(r.PostFormValue("redirect"))

	token, _, err := h.auth.SignIn(r.Context(), email, password)
	if err != nil {
		h.render(w, http.StatusUnauthorized, "login.html", map[string]any{
			"Redirect":  redirect,
			"Email":     email,
			"FormError": "メールアドレスまたはパスワードが正しくありません。",
		})
		return
	}

	h.setSessionCookie(w, token)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// Logout はセッションを破棄してトップページに戻す。
// POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(authsvc.SessionCookieName); err == nil && cookie.Value != "" {
		h.auth.SignOut(r.Context(), cookie.Value)
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// --- ヘルパー ---

// safeRedirect はリダイレクト先をサイト内パスに制限する。
// 外部URLやプロトコル相対URLはトップページに落とす。
// ブラウザは特殊スキームのURLで \ を / に正規化するため、
// \ も / と同様にエスケープ文字として扱う。
func safeRedirect(target string) string {
	if target == "" || target[0] != '/' {
		return "/"
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return "/"
	}
	return target
}

// render はテンプレートを実行してレスポンスを書き込む。
// テンプレートエラーでも空白ページは返さない。
func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderError はプロシージャエラーをエラー画面に変換する。
// POST_NOT_FOUNDは404ページ、それ以外はエラーページになる。
func (h *Handler) renderError(w http.ResponseWriter, err error) {
	rpcErr, ok := model.AsRPCError(err)
	if !ok {
		if err != nil {
			h.logger.Error("page rendering failed",
				slog.String("error", err.Error()),
			)
		}
		h.render(w, http.StatusInternalServerError, "error.html", map[string]any{
			"Message": "サーバー内部でエラーが発生しました。",
		})
		return
	}

	if rpcErr.Code == model.ErrCodePostNotFound {
		h.render(w, http.StatusNotFound, "not_found.html", map[string]any{
			"Message": rpcErr.Message,
		})
		return
	}

	h.render(w, wire.StatusForCode(rpcErr.Code), "error.html", map[string]any{
		"Message": rpcErr.Message,
	})
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.SessionCookieName,
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
		Name:     authsvc.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
