package decision

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]AIDecision
	order   []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]AIDecision)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, d *AIDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[d.ID]; ok {
		return ErrDuplicate
	}
	s.records[d.ID] = *d
	s.order = append(s.order, d.ID)
	return nil
}

// ListByConversation implements Store. Records are returned newest first;
// a non-positive limit returns all of them.
func (s *MemoryStore) ListByConversation(_ context.Context, conversationID string, limit int) ([]*AIDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*AIDecision
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if rec.ConversationID != conversationID {
			continue
		}
		out = append(out, &rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every record in insertion order.
func (s *MemoryStore) All() []AIDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AIDecision, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}
