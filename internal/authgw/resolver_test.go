package authgw

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hitoshi/postboard/internal/authsvc"
	"github.com/hitoshi/postboard/internal/model"
)

// countingResolver は呼び出し回数を数えるモックリゾルバー。
type countingResolver struct {
	calls   atomic.Int64
	session *model.Session
	err     error
}

func (c *countingResolver) Resolve(_ context.Context, _ model.RequestIdentity) (*model.Session, error) {
	c.calls.Add(1)
	return c.session, c.err
}

func validSessionBody() string {
	return `{
		"user": {
			"id": "user-1",
			"name": "Demo User",
			"email": "demo@example.com",
			"created_at": "2024-06-01T00:00:00Z",
			"updated_at": "2024-06-01T00:00:00Z"
		},
		"session": {
			"id": "session-1",
			"created_at": "2024-06-01T00:00:00Z",
			"updated_at": "2024-06-01T00:00:00Z",
			"expires_at": "2024-06-02T00:00:00Z"
		}
	}`
}

func newHTTPResolverFor(srv *httptest.Server) *HTTPResolver {
	return NewHTTPResolver(srv.Client(), testLogger(), srv.URL)
}

func TestHTTPResolver_Success(t *testing.T) {
	var gotCookie, gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/get-session" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/auth/get-session")
		}
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(validSessionBody()))
	}))
	defer srv.Close()

	resolver := newHTTPResolverFor(srv)
	identity := model.RequestIdentity{
		Cookie:    "postboard_session=abc123",
		UserAgent: "test-agent/1.0",
		Accept:    "application/json",
	}

	session, err := resolver.Resolve(context.Background(), identity)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if session == nil {
		t.Fatal("session must not be nil")
	}
	if session.User.ID != "user-1" || session.Data.ID != "session-1" {
		t.Errorf("session = %+v", session)
	}

	// 識別情報は許可リスト分だけがそのまま転送される
	if gotCookie != identity.Cookie {
		t.Errorf("forwarded cookie = %q, want %q", gotCookie, identity.Cookie)
	}
	if gotUA != identity.UserAgent {
		t.Errorf("forwarded user-agent = %q, want %q", gotUA, identity.UserAgent)
	}
	if gotAccept != identity.Accept {
		t.Errorf("forwarded accept = %q, want %q", gotAccept, identity.Accept)
	}
}

func TestHTTPResolver_NoSessionSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no session", http.StatusUnauthorized)
	}))
	defer srv.Close()

	session, err := newHTTPResolverFor(srv).Resolve(context.Background(), model.RequestIdentity{})
	if err != nil {
		t.Fatalf("401 is an explicit no-session signal, not an error: %v", err)
	}
	if session != nil {
		t.Error("session must be nil")
	}
}

func TestHTTPResolver_UpstreamFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"500レスポンス", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"不正なJSONボディ", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not-json`))
		}},
		{"ユーザー欠落ペイロード", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"session":{"id":"s-1"}}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			session, err := newHTTPResolverFor(srv).Resolve(context.Background(), model.RequestIdentity{})
			if session != nil {
				t.Error("session must be nil on upstream failure")
			}
			rpcErr, ok := model.AsRPCError(err)
			if !ok {
				t.Fatalf("expected *model.RPCError, got %v", err)
			}
			if rpcErr.Code != model.ErrCodeUpstreamUnavailable {
				t.Errorf("code = %q, want %q", rpcErr.Code, model.ErrCodeUpstreamUnavailable)
			}
		})
	}
}

func TestHTTPResolver_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newHTTPResolverFor(srv).Resolve(ctx, model.RequestIdentity{})
	if err == nil {
		t.Error("cancelled resolution must surface an error")
	}
}

func TestLocalResolver(t *testing.T) {
	svc := authsvc.NewService(authsvc.Config{SessionMaxAge: 3600})
	token, issued, err := svc.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	resolver := NewLocalResolver(svc)

	t.Run("有効なCookieで解決", func(t *testing.T) {
		identity := model.RequestIdentity{Cookie: authsvc.SessionCookieName + "=" + token}
		session, err := resolver.Resolve(context.Background(), identity)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if session == nil || session.Data.ID != issued.Data.ID {
			t.Errorf("session = %+v, want id %q", session, issued.Data.ID)
		}
	})

	t.Run("Cookieなしは匿名", func(t *testing.T) {
		session, err := resolver.Resolve(context.Background(), model.RequestIdentity{})
		if err != nil || session != nil {
			t.Errorf("resolve = (%+v, %v), want (nil, nil)", session, err)
		}
	})

	t.Run("無関係なCookieは匿名", func(t *testing.T) {
		identity := model.RequestIdentity{Cookie: "other=value"}
		session, err := resolver.Resolve(context.Background(), identity)
		if err != nil || session != nil {
			t.Errorf("resolve = (%+v, %v), want (nil, nil)", session, err)
		}
	})
}

func TestRequestSession_MemoizesResolution(t *testing.T) {
	resolver := &countingResolver{session: &model.Session{
		User: model.User{ID: "user-1"},
		Data: model.SessionData{ID: "session-1"},
	}}
	rs := NewRequestSession(resolver, model.RequestIdentity{})

	// 同一リクエスト内で3回問い合わせても外部呼び出しは1回
	for i := 0; i < 3; i++ {
		if session := rs.Session(context.Background()); session == nil {
			t.Fatal("session must resolve")
		}
	}
	if got := resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestRequestSession_MemoizesUnderConcurrency(t *testing.T) {
	resolver := &countingResolver{session: &model.Session{
		User: model.User{ID: "user-1"},
		Data: model.SessionData{ID: "session-1"},
	}}
	rs := NewRequestSession(resolver, model.RequestIdentity{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs.Session(context.Background())
		}()
	}
	wg.Wait()

	if got := resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestRequestSession_FailureDegradesToAnonymous(t *testing.T) {
	resolver := &countingResolver{err: model.NewUpstreamUnavailableError("down")}
	rs := NewRequestSession(resolver, model.RequestIdentity{})

	if session := rs.Session(context.Background()); session != nil {
		t.Error("failed resolution must degrade to anonymous")
	}
	// 失敗もメモ化され、再試行は起きない
	rs.Session(context.Background())
	if got := resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}
}

func TestRequestSession_PeekDoesNotResolve(t *testing.T) {
	resolver := &countingResolver{}
	rs := NewRequestSession(resolver, model.RequestIdentity{})

	if _, ok := rs.Peek(); ok {
		t.Error("Peek before resolution must report unresolved")
	}
	if got := resolver.calls.Load(); got != 0 {
		t.Errorf("Peek must not trigger resolution, calls = %d", got)
	}

	rs.Session(context.Background())
	if _, ok := rs.Peek(); !ok {
		t.Error("Peek after resolution must report resolved")
	}
}

func TestRequestSession_ScopeIsolation(t *testing.T) {
	// リクエストごとに別のRequestSessionを持ち、結果は共有されない
	authenticated := &countingResolver{session: &model.Session{
		User: model.User{ID: "user-1"},
		Data: model.SessionData{ID: "session-1"},
	}}
	anonymous := &countingResolver{}

	rs1 := NewRequestSession(authenticated, model.RequestIdentity{Cookie: "a=1"})
	rs2 := NewRequestSession(anonymous, model.RequestIdentity{})

	if rs1.Session(context.Background()) == nil {
		t.Error("request 1 must resolve to a session")
	}
	if rs2.Session(context.Background()) != nil {
		t.Error("request 2 must stay anonymous")
	}
}

func TestInstrumentedResolver(t *testing.T) {
	outcomes := make([]string, 0, 3)
	rec := recorderFunc(func(outcome string) { outcomes = append(outcomes, outcome) })

	authenticated := &countingResolver{session: &model.Session{User: model.User{ID: "u"}, Data: model.SessionData{ID: "s"}}}
	NewInstrumentedResolver(authenticated, rec).Resolve(context.Background(), model.RequestIdentity{})

	anonymous := &countingResolver{}
	NewInstrumentedResolver(anonymous, rec).Resolve(context.Background(), model.RequestIdentity{})

	failing := &countingResolver{err: model.NewUpstreamUnavailableError("down")}
	NewInstrumentedResolver(failing, rec).Resolve(context.Background(), model.RequestIdentity{})

	want := []string{"authenticated", "anonymous", "error"}
	for i, w := range want {
		if outcomes[i] != w {
			t.Errorf("outcomes[%d] = %q, want %q", i, outcomes[i], w)
		}
	}
}

// recorderFunc はResolutionRecorderの関数アダプタ。
type recorderFunc func(outcome string)

func (f recorderFunc) RecordSessionResolution(outcome string) { f(outcome) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
