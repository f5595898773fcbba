// Package authsvc は外部認証サービスのプロセス内実装を提供する。
//
// システム本体から見た認証サービスは不透明なブラックボックスであり、
// このパッケージはその契約（Cookie照合によるセッション解決、
// サインイン/サインアウト）を単体デモ用に満たすスタンドインである。
// セッションとユーザーはプロセス寿命を超えて永続化されない。
package authsvc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/postboard/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "postboard_session"

// Config は認証サービスの設定。
type Config struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// storedUser は認証サービスが保持するユーザーレコード。
type storedUser struct {
	user     model.User
	password string
}

// storedSession は認証サービスが保持するセッションレコード。
type storedSession struct {
	data   model.SessionData
	userID string
}

// Service は認証サービス本体。ユーザーとセッションをメモリ上に保持する。
type Service struct {
	mu           sync.RWMutex
	usersByEmail map[string]*storedUser
	usersByID    map[string]*storedUser
	sessions     map[string]*storedSession // トークン -> セッション
	config       Config
	now          func() time.Time
}

// NewService はServiceを生成し、デモ用ユーザーを1件登録する。
func NewService(config Config) *Service {
	s := &Service{
		usersByEmail: make(map[string]*storedUser),
		usersByID:    make(map[string]*storedUser),
		sessions:     make(map[string]*storedSession),
		config:       config,
		now:          time.Now,
	}

	// デモ用アカウント
	if _, err := s.register("Demo User", "demo@example.com", "password123"); err != nil {
		slog.Error("failed to seed demo user", slog.String("error", err.Error()))
	}
	return s
}

// SignUp はユーザーを登録し、そのままセッションを発行する。
func (s *Service) SignUp(ctx context.Context, name, email, password string) (string, *model.Session, error) {
	if name == "" || email == "" || password == "" {
		return "", nil, fmt.Errorf("name, email and password are required")
	}

	user, err := s.register(name, email, password)
	if err != nil {
		return "", nil, err
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return s.createSession(user.ID)
}

// SignIn は資格情報を照合し、セッショントークンと解決済みセッションを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (string, *model.Session, error) {
	s.mu.RLock()
	stored, ok := s.usersByEmail[email]
	s.mu.RUnlock()

	if !ok || stored.password != password {
		return "", nil, fmt.Errorf("invalid email or password")
	}

	slog.Info("user signed in", slog.String("user_id", stored.user.ID))
	return s.createSession(stored.user.ID)
}

// SignOut はトークンに対応するセッションを破棄する。
// トークンが無効でもエラーにはしない（冪等）。
func (s *Service) SignOut(ctx context.Context, token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// SessionByToken はトークンからセッションを解決する。
// ユーザーとセッションメタデータは1つのクリティカルセクションで
// 同時に解決され、どちらか片方だけの結果は返らない。
// トークンが無効・期限切れの場合は(nil, nil)を返す。
func (s *Service) SessionByToken(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	if s.now().After(sess.data.ExpiresAt) {
		delete(s.sessions, token)
		return nil, nil
	}

	user, ok := s.usersByID[sess.userID]
	if !ok {
		// ユーザーのないセッションは不変条件違反なので破棄する
		delete(s.sessions, token)
		return nil, nil
	}

	sess.data.UpdatedAt = s.now()

	return &model.Session{
		User: user.user,
		Data: sess.data,
	}, nil
}

// register はユーザーレコードを作成する。
func (s *Service) register(name, email, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[email]; exists {
		return nil, fmt.Errorf("email already registered")
	}

	now := s.now()
	user := model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored := &storedUser{user: user, password: password}
	s.usersByEmail[email] = stored
	s.usersByID[user.ID] = stored
	return &user, nil
}

// createSession はセッションを発行する。
func (s *Service) createSession(userID string) (string, *model.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &storedSession{
		data: model.SessionData{
			ID:        uuid.New().String(),
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		},
		userID: userID,
	}
	s.sessions[token] = sess

	user := s.usersByID[userID]
	return token, &model.Session{User: user.user, Data: sess.data}, nil
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
