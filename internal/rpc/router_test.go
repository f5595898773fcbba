package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hitoshi/postboard/internal/model"
	"github.com/hitoshi/postboard/internal/store"
)

// passthroughSanitizer は入力をそのまま返すモック。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(rawHTML string) string { return rawHTML }

// markingSanitizer はサニタイズが呼ばれたことを記録するモック。
type markingSanitizer struct {
	called bool
}

func (m *markingSanitizer) Sanitize(rawHTML string) string {
	m.called = true
	return rawHTML
}

func newTestRouter() (*Router, *store.PostStore) {
	s := store.NewSeededPostStore()
	return NewRouter(s, passthroughSanitizer{}), s
}

func testSession() *model.Session {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &model.Session{
		User: model.User{
			ID:        "user-1",
			Name:      "Demo User",
			Email:     "demo@example.com",
			CreatedAt: now,
			UpdatedAt: now,
		},
		Data: model.SessionData{
			ID:        "session-1",
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		},
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	r, _ := newTestRouter()

	out, err := r.Call(context.Background(), ProcHealthCheck, nil)
	if err != nil {
		t.Fatalf("healthCheck failed: %v", err)
	}
	if out != "OK" {
		t.Errorf("healthCheck = %v, want %q", out, "OK")
	}
}

func TestRouter_UnknownOperation(t *testing.T) {
	r, _ := newTestRouter()

	_, err := r.Call(context.Background(), "posts.delete", nil)
	rpcErr, ok := model.AsRPCError(err)
	if !ok {
		t.Fatalf("expected *model.RPCError, got %v", err)
	}
	if rpcErr.Code != model.ErrCodeOperationNotFound {
		t.Errorf("code = %q, want %q", rpcErr.Code, model.ErrCodeOperationNotFound)
	}
}

func TestRouter_PostsCreateThenByID(t *testing.T) {
	r, _ := newTestRouter()

	input := json.RawMessage(`{"title":"新規投稿","content":"<p>本文</p>","author":"Alice"}`)
	out, err := r.Call(context.Background(), ProcPostsCreate, input)
	if err != nil {
		t.Fatalf("posts.create failed: %v", err)
	}
	created := out.(PostPayload)

	byID, err := r.Call(context.Background(), ProcPostsByID,
		json.RawMessage(`{"id":"`+created.ID+`"}`))
	if err != nil {
		t.Fatalf("posts.byId failed: %v", err)
	}
	fetched := byID.(PostPayload)

	if fetched.ID != created.ID || fetched.Title != created.Title ||
		fetched.Content != created.Content || fetched.Author != created.Author ||
		!fetched.CreatedAt.Equal(created.CreatedAt.Time) {
		t.Errorf("fetched = %+v, want %+v", fetched, created)
	}
}

func TestRouter_PostsCreateIsNotIdempotent(t *testing.T) {
	r, _ := newTestRouter()
	input := json.RawMessage(`{"title":"t","content":"c","author":"a"}`)

	first, err := r.Call(context.Background(), ProcPostsCreate, input)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := r.Call(context.Background(), ProcPostsCreate, input)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	if first.(PostPayload).ID == second.(PostPayload).ID {
		t.Error("repeated create with identical input must append a distinct post")
	}
}

func TestRouter_PostsByIDNotFound(t *testing.T) {
	r, _ := newTestRouter()

	_, err := r.Call(context.Background(), ProcPostsByID, json.RawMessage(`{"id":"999"}`))
	rpcErr, ok := model.AsRPCError(err)
	if !ok {
		t.Fatalf("expected *model.RPCError, got %v", err)
	}
	if rpcErr.Code != model.ErrCodePostNotFound {
		t.Errorf("code = %q, want %q", rpcErr.Code, model.ErrCodePostNotFound)
	}
}

func TestRouter_NotFoundKindsAreDistinguishable(t *testing.T) {
	r, _ := newTestRouter()

	_, opErr := r.Call(context.Background(), "no.such.op", nil)
	_, postErr := r.Call(context.Background(), ProcPostsByID, json.RawMessage(`{"id":"999"}`))

	opRPC, _ := model.AsRPCError(opErr)
	postRPC, _ := model.AsRPCError(postErr)
	if opRPC.Code == postRPC.Code {
		t.Errorf("operation-not-found and post-not-found must carry distinct codes, both %q", opRPC.Code)
	}
}

func TestRouter_PostsByAuthor(t *testing.T) {
	r, _ := newTestRouter()

	tests := []struct {
		name   string
		input  string
		want   int
	}{
		{"空文字列は全件", `{"author":""}`, 3},
		{"該当なしは空結果", `{"author":"nonexistent-xyz"}`, 0},
		{"大文字小文字を区別しない部分一致", `{"author":"JANE"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Call(context.Background(), ProcPostsByAuthor, json.RawMessage(tt.input))
			if err != nil {
				t.Fatalf("posts.byAuthor failed: %v", err)
			}
			posts := out.([]PostPayload)
			if len(posts) != tt.want {
				t.Errorf("len = %d, want %d", len(posts), tt.want)
			}
		})
	}
}

func TestRouter_PostsCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantField string
	}{
		{"titleなし", `{"content":"c","author":"a"}`, "title"},
		{"title空文字列", `{"title":"","content":"c","author":"a"}`, "title"},
		{"contentなし", `{"title":"t","author":"a"}`, "content"},
		{"authorなし", `{"title":"t","content":"c"}`, "author"},
		{"入力なし", ``, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewPostStore()
			r := NewRouter(s, passthroughSanitizer{})

			_, err := r.Call(context.Background(), ProcPostsCreate, json.RawMessage(tt.input))
			rpcErr, ok := model.AsRPCError(err)
			if !ok {
				t.Fatalf("expected *model.RPCError, got %v", err)
			}
			if rpcErr.Code != model.ErrCodeInvalidInput {
				t.Errorf("code = %q, want %q", rpcErr.Code, model.ErrCodeInvalidInput)
			}
			if rpcErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", rpcErr.Field, tt.wantField)
			}
			// バリデーション失敗時は一切の状態変更が起きない
			if s.Count() != 0 {
				t.Errorf("store must remain unchanged, has %d posts", s.Count())
			}
		})
	}
}

func TestRouter_PostsCreateSanitizesContent(t *testing.T) {
	s := store.NewPostStore()
	sanitizer := &markingSanitizer{}
	r := NewRouter(s, sanitizer)

	input := json.RawMessage(`{"title":"t","content":"<script>x</script>","author":"a"}`)
	if _, err := r.Call(context.Background(), ProcPostsCreate, input); err != nil {
		t.Fatalf("posts.create failed: %v", err)
	}
	if !sanitizer.called {
		t.Error("content must pass through the sanitizer before storage")
	}
}

func TestRouter_PrivateDataWithoutSession(t *testing.T) {
	r, _ := newTestRouter()

	_, err := r.Call(context.Background(), ProcPrivateData, nil)
	rpcErr, ok := model.AsRPCError(err)
	if !ok {
		t.Fatalf("expected *model.RPCError, got %v", err)
	}
	if rpcErr.Code != model.ErrCodeUnauthenticated {
		t.Errorf("code = %q, want %q", rpcErr.Code, model.ErrCodeUnauthenticated)
	}
}

func TestRouter_PrivateDataWithSession(t *testing.T) {
	r, _ := newTestRouter()
	session := testSession()
	ctx := ContextWithSession(context.Background(), session)

	out, err := r.Call(ctx, ProcPrivateData, nil)
	if err != nil {
		t.Fatalf("privateData failed: %v", err)
	}

	payload := out.(PrivateDataPayload)
	if payload.User.ID != session.User.ID {
		t.Errorf("user.id = %q, want %q", payload.User.ID, session.User.ID)
	}
	if payload.User.Email != session.User.Email {
		t.Errorf("user.email = %q, want %q", payload.User.Email, session.User.Email)
	}
	if payload.Message == "" {
		t.Error("payload must carry a message")
	}
}

func TestRouter_ServerTime(t *testing.T) {
	r, _ := newTestRouter()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	out, err := r.Call(context.Background(), ProcServerTime, nil)
	if err != nil {
		t.Fatalf("serverTime failed: %v", err)
	}

	payload := out.(ServerTimePayload)
	if !payload.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", payload.Timestamp.Time, fixed)
	}
	if payload.Timezone == "" {
		t.Error("timezone must be resolved")
	}
}
