package conversation

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Values are cloned on the way in and out
// so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Context
	byConv map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Context),
		byConv: make(map[string]string),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return stored.Clone(), nil
}

// GetByConversation implements Store.
func (s *MemoryStore) GetByConversation(_ context.Context, conversationID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byConv[conversationID]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.byConv[c.ConversationID]; ok {
		return ErrAlreadyExists
	}

	ts := now().UTC()
	c.CreatedAt = ts
	c.UpdatedAt = ts
	c.Version = 1

	s.byID[c.ID] = c.Clone()
	s.byConv[c.ConversationID] = c.ID
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}

	c.Version++
	c.UpdatedAt = now().UTC()
	s.byID[c.ID] = c.Clone()
	return nil
}

// Len reports how many contexts are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
