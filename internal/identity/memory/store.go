package memory

import (
	"context"
	"sync"

	"github.com/supportchat/internal/identity"
)

// Store хранит идентификатор в памяти (тесты и одноразовые сессии).
type Store struct {
	mu sync.RWMutex
	id *identity.Identity
}

func New() *Store { return &Store{} }

func (s *Store) Close() error { return nil }

func (s *Store) Load(ctx context.Context) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == nil {
		return nil, nil
	}
	cp := *s.id
	return &cp, nil
}

func (s *Store) Save(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = &id
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = nil
	return nil
}
