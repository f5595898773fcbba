package authsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestService() *Service {
	return NewService(Config{SessionMaxAge: 3600})
}

func TestService_SignInWithSeededUser(t *testing.T) {
	s := newTestService()

	token, session, err := s.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if token == "" {
		t.Error("token must not be empty")
	}
	if session == nil {
		t.Fatal("session must not be nil")
	}
	// ユーザーとセッションメタデータは常に同時に設定される
	if session.User.ID == "" || session.Data.ID == "" {
		t.Errorf("session must carry both user and metadata: %+v", session)
	}
	if session.User.Email != "demo@example.com" {
		t.Errorf("email = %q, want %q", session.User.Email, "demo@example.com")
	}
}

func TestService_SignInWrongPassword(t *testing.T) {
	s := newTestService()

	if _, _, err := s.SignIn(context.Background(), "demo@example.com", "wrong"); err == nil {
		t.Error("wrong password must be rejected")
	}
	if _, _, err := s.SignIn(context.Background(), "nobody@example.com", "password123"); err == nil {
		t.Error("unknown email must be rejected")
	}
}

func TestService_SessionByToken(t *testing.T) {
	s := newTestService()
	token, issued, err := s.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	resolved, err := s.SessionByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SessionByToken failed: %v", err)
	}
	if resolved == nil {
		t.Fatal("issued token must resolve")
	}
	if resolved.Data.ID != issued.Data.ID {
		t.Errorf("session id = %q, want %q", resolved.Data.ID, issued.Data.ID)
	}

	// 無効なトークンはエラーではなく「セッションなし」
	none, err := s.SessionByToken(context.Background(), "bogus-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Error("unknown token must resolve to no session")
	}
}

func TestService_SessionExpiry(t *testing.T) {
	s := newTestService()
	token, _, err := s.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	// 時計を有効期限の先まで進める
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	resolved, err := s.SessionByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != nil {
		t.Error("expired session must resolve to no session")
	}
}

func TestService_SignOut(t *testing.T) {
	s := newTestService()
	token, _, err := s.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	s.SignOut(context.Background(), token)

	resolved, _ := s.SessionByToken(context.Background(), token)
	if resolved != nil {
		t.Error("signed-out token must no longer resolve")
	}

	// 冪等: 2回目の呼び出しもpanicしない
	s.SignOut(context.Background(), token)
}

func TestService_SignUp(t *testing.T) {
	s := newTestService()

	token, session, err := s.SignUp(context.Background(), "New User", "new@example.com", "secret")
	if err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}
	if token == "" || session == nil {
		t.Fatal("sign-up must issue a session")
	}

	// 同じメールアドレスの再登録は拒否される
	if _, _, err := s.SignUp(context.Background(), "Dup", "new@example.com", "x"); err == nil {
		t.Error("duplicate email must be rejected")
	}
}

func TestHandler_GetSession(t *testing.T) {
	s := newTestService()
	h := NewHandler(s, HandlerConfig{SessionMaxAge: 3600})
	token, _, err := s.SignIn(context.Background(), "demo@example.com", "password123")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	t.Run("有効なCookieで200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/get-session", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		w := httptest.NewRecorder()

		h.GetSession(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("Cookieなしで401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/get-session", nil)
		w := httptest.NewRecorder()

		h.GetSession(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("無効なトークンで401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/get-session", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "bogus"})
		w := httptest.NewRecorder()

		h.GetSession(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestHandler_SignInSetsCookie(t *testing.T) {
	s := newTestService()
	h := NewHandler(s, HandlerConfig{SessionMaxAge: 3600})

	body := strings.NewReader(`{"email":"demo@example.com","password":"password123"}`)
	req := httptest.NewRequest(http.MethodPost, "/sign-in", body)
	w := httptest.NewRecorder()

	h.SignIn(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body)
	}

	cookies := w.Result().Cookies()
	var found *http.Cookie
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatal("sign-in must set the session cookie")
	}
	if !found.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if found.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", found.SameSite)
	}
}
