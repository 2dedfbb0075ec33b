package services

import (
	"context"
	"sync"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// MemoryPostStore is the in-process append-only post collection.
type MemoryPostStore struct {
	mu    sync.RWMutex
	posts []domain.Post
}

func NewMemoryPostStore() *MemoryPostStore {
	return &MemoryPostStore{}
}

func (s *MemoryPostStore) AppendPost(_ context.Context, post domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, post)
	return nil
}

func (s *MemoryPostStore) ListPosts(_ context.Context) ([]domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Post, len(s.posts))
	copy(out, s.posts)
	return out, nil
}

func (s *MemoryPostStore) CountPosts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts), nil
}
