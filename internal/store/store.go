// Package store は投稿のインメモリレコードストアを提供する。
//
// ストアはプロセス全体で共有される可変状態であり、書き込みは
// 単一のミューテックスで直列化される。IDは現在の件数からではなく
// 単調増加カウンターから採番するため、並行するCreate呼び出しでも
// 衝突しない。
package store

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/postboard/internal/model"
)

// PostStore は投稿を作成順に保持するインメモリストア。
// 読み取りは読み取り同士をブロックしない。
type PostStore struct {
	mu     sync.RWMutex
	posts  []model.Post
	nextID int64
	now    func() time.Time
}

// NewPostStore は空のPostStoreを生成する。
func NewPostStore() *PostStore {
	return &PostStore{
		nextID: 1,
		now:    time.Now,
	}
}

// NewSeededPostStore はデモ用の初期投稿3件を含むPostStoreを生成する。
func NewSeededPostStore() *PostStore {
	s := NewPostStore()
	seeds := []model.Post{
		{
			ID:        "1",
			Title:     "Getting Started with Typed RPC",
			Content:   "<p>This post demonstrates server-side rendering backed by a typed procedure router</p>",
			Author:    "John Doe",
			CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:        "2",
			Title:     "Advanced Procedure Patterns",
			Content:   "<p>Learn about advanced patterns and best practices</p>",
			Author:    "Jane Smith",
			CreatedAt: time.Date(2024, 1, 20, 14, 30, 0, 0, time.UTC),
		},
		{
			ID:        "3",
			Title:     "Building Server-Rendered Pages",
			Content:   "<p>How to combine session gating with server-side data fetching</p>",
			Author:    "Mike Johnson",
			CreatedAt: time.Date(2024, 1, 25, 9, 15, 0, 0, time.UTC),
		},
	}
	s.posts = seeds
	s.nextID = int64(len(seeds)) + 1
	return s
}

// List は全投稿を作成順で返す。返り値は内部スライスのコピー。
func (s *PostStore) List() []model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]model.Post, len(s.posts))
	copy(posts, s.posts)
	return posts
}

// Find はIDが一致する投稿を返す。存在しない場合は第2戻り値がfalse。
func (s *PostStore) Find(id string) (model.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

// FilterByAuthor は著者名に部分文字列が含まれる投稿を返す。
// 大文字小文字は区別しない。空文字列は全投稿にマッチする。
// 該当なしの場合は空スライスを返す（エラーにはならない）。
func (s *PostStore) FilterByAuthor(substr string) []model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(substr)
	matched := make([]model.Post, 0)
	for _, p := range s.posts {
		if strings.Contains(strings.ToLower(p.Author), needle) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Count は投稿数を返す。
func (s *PostStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.posts)
}

// Create は投稿を追記し、作成されたレコードを返す。
// ID採番・タイムスタンプ付与・追記は1つのクリティカルセクションで
// 行われるため、並行呼び出しでも部分書き込みは発生しない。
func (s *PostStore) Create(title, content, author string) model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	post := model.Post{
		ID:        strconv.FormatInt(s.nextID, 10),
		Title:     title,
		Content:   content,
		Author:    author,
		CreatedAt: s.now(),
	}
	s.nextID++
	s.posts = append(s.posts, post)
	return post
}
