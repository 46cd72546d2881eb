package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process ChannelDirectory and Conversations. It
// backs single-node deployments without Supabase and the tests.
type MemoryDirectory struct {
	mu            sync.RWMutex
	channels      map[string]Channel
	conversations map[string]*Conversation
	history       map[string][]HistoryMessage
	now           func() time.Time
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		channels:      make(map[string]Channel),
		conversations: make(map[string]*Conversation),
		history:       make(map[string][]HistoryMessage),
		now:           time.Now,
	}
}

// AddChannel registers a channel under its external ID.
func (d *MemoryDirectory) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	d.channels[ch.ExternalID] = ch
}

// FindByExternalID implements ChannelDirectory. A miss returns nil, nil.
func (d *MemoryDirectory) FindByExternalID(_ context.Context, externalID string) (*Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[externalID]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

// Create implements Conversations.
func (d *MemoryDirectory) Create(_ context.Context, key ConversationKey) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create(key), nil
}

func (d *MemoryDirectory) create(key ConversationKey) *Conversation {
	c := &Conversation{
		ID:        uuid.NewString(),
		UserID:    key.UserID,
		ChannelID: key.ChannelID,
		TenantID:  key.TenantID,
		CreatedAt: d.now().UTC(),
	}
	d.conversations[c.ID] = c
	cp := *c
	return &cp
}

// ResolveOrCreate implements Conversations. The most recently created
// conversation matching key wins.
func (d *MemoryDirectory) ResolveOrCreate(_ context.Context, key ConversationKey) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var latest *Conversation
	for _, c := range d.conversations {
		if c.UserID != key.UserID || c.TenantID != key.TenantID || c.ChannelID != key.ChannelID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return d.create(key), nil
	}
	cp := *latest
	return &cp, nil
}

// AppendMessage implements Conversations.
func (d *MemoryDirectory) AppendMessage(_ context.Context, conversationID string, msg HistoryMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = d.now().UTC()
	}
	d.history[conversationID] = append(d.history[conversationID], msg)
	return nil
}

// History returns a copy of a conversation's history.
func (d *MemoryDirectory) History(conversationID string) []HistoryMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HistoryMessage, len(d.history[conversationID]))
	copy(out, d.history[conversationID])
	return out
}
