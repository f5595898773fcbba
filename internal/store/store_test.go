package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPostStore_CreateAndFind(t *testing.T) {
	s := NewPostStore()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	created := s.Create("タイトル", "<p>本文</p>", "Alice")

	if created.ID != "1" {
		t.Errorf("ID = %q, want %q", created.ID, "1")
	}
	if !created.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", created.CreatedAt, fixed)
	}

	found, ok := s.Find(created.ID)
	if !ok {
		t.Fatal("Find should locate the created post")
	}
	if found != created {
		t.Errorf("found = %+v, want %+v", found, created)
	}
}

func TestPostStore_CreateIsAppendNotUpsert(t *testing.T) {
	s := NewPostStore()

	first := s.Create("同じタイトル", "同じ本文", "Alice")
	second := s.Create("同じタイトル", "同じ本文", "Alice")

	if first.ID == second.ID {
		t.Errorf("duplicate inputs must yield distinct ids, both got %q", first.ID)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}
}

func TestPostStore_FindMissing(t *testing.T) {
	s := NewSeededPostStore()

	if _, ok := s.Find("no-such-id"); ok {
		t.Error("Find should report absence for unknown id")
	}
}

func TestPostStore_ListReturnsCreationOrder(t *testing.T) {
	s := NewPostStore()
	s.Create("a", "a", "A")
	s.Create("b", "b", "B")
	s.Create("c", "c", "C")

	posts := s.List()
	if len(posts) != 3 {
		t.Fatalf("len = %d, want 3", len(posts))
	}
	for i, want := range []string{"1", "2", "3"} {
		if posts[i].ID != want {
			t.Errorf("posts[%d].ID = %q, want %q", i, posts[i].ID, want)
		}
	}

	// 返り値はコピーであり、変更してもストアに影響しない
	posts[0].Title = "mutated"
	if p, _ := s.Find("1"); p.Title == "mutated" {
		t.Error("List must return a copy, not the internal slice")
	}
}

func TestPostStore_FilterByAuthor(t *testing.T) {
	s := NewSeededPostStore()

	tests := []struct {
		name   string
		substr string
		want   int
	}{
		{"空文字列は全件にマッチ", "", 3},
		{"大文字小文字を区別しない", "jane", 1},
		{"部分一致", "john", 2}, // John Doe と Mike Johnson
		{"該当なしは空結果", "nonexistent-xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.FilterByAuthor(tt.substr)
			if got == nil {
				t.Fatal("FilterByAuthor must return an empty slice, not nil")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestPostStore_SeededContents(t *testing.T) {
	s := NewSeededPostStore()

	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}

	created := s.Create("new", "new", "New Author")
	if created.ID != "4" {
		t.Errorf("first created id after seeds = %q, want %q", created.ID, "4")
	}
}

func TestPostStore_ConcurrentCreateYieldsDistinctIDs(t *testing.T) {
	s := NewPostStore()
	const n = 100

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := s.Create(fmt.Sprintf("title-%d", i), "content", "author")
			ids <- p.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id assigned under concurrency: %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("distinct ids = %d, want %d", len(seen), n)
	}
	if s.Count() != n {
		t.Errorf("Count = %d, want %d", s.Count(), n)
	}
}
