package conversation

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a message came from the user or was sent to them.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one entry of the context window.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Direction Direction      `json:"direction"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Intent is the classifier's reading of an inbound message.
type Intent struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities,omitempty"`
}

// PendingAction is an action awaiting resolution, e.g. a payment approval the
// user still has to confirm.
type PendingAction struct {
	ID           string         `json:"id"`
	FunctionName string         `json:"function_name"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Key carries the immutable identity of a context.
type Key struct {
	ConversationID string
	UserID         string
	ChannelID      string
	TenantID       string
}

// Context is the mutable orchestration state of one conversation.
type Context struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	ChannelID      string          `json:"channel_id"`
	TenantID       string          `json:"tenant_id"`
	RecentMessages []Message       `json:"recent_messages"`
	CurrentIntent  *Intent         `json:"current_intent,omitempty"`
	PendingActions []PendingAction `json:"pending_actions,omitempty"`
	SessionData    map[string]any  `json:"session_data,omitempty"`
	LastActivity   time.Time       `json:"last_activity"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int64           `json:"version"`
}

// now is replaced in tests.
var now = time.Now

// New creates an unsaved context for key. Version stays 0 until Store.Create.
func New(key Key) *Context {
	ts := now().UTC()
	return &Context{
		ID:             uuid.New().String(),
		ConversationID: key.ConversationID,
		UserID:         key.UserID,
		ChannelID:      key.ChannelID,
		TenantID:       key.TenantID,
		RecentMessages: []Message{},
		SessionData:    map[string]any{},
		LastActivity:   ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

// Key returns the identity of c.
func (c *Context) Key() Key {
	return Key{
		ConversationID: c.ConversationID,
		UserID:         c.UserID,
		ChannelID:      c.ChannelID,
		TenantID:       c.TenantID,
	}
}

// AppendMessage adds m to the window and drops the oldest entries so that at
// most limit messages remain. A zero ID or timestamp is filled in.
func (c *Context) AppendMessage(m Message, limit int) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now().UTC()
	}
	c.RecentMessages = appendBounded(c.RecentMessages, m, limit)
	c.touch()
}

// SetIntent replaces the current intent.
func (c *Context) SetIntent(intent Intent) {
	c.CurrentIntent = &intent
	c.touch()
}

// MergeSessionData overwrites the given keys and keeps the others.
func (c *Context) MergeSessionData(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if c.SessionData == nil {
		c.SessionData = make(map[string]any, len(data))
	}
	maps.Copy(c.SessionData, data)
	c.touch()
}

// ClearSessionData removes all session data.
func (c *Context) ClearSessionData() {
	c.SessionData = map[string]any{}
	c.touch()
}

// AddPendingAction records an unresolved action.
func (c *Context) AddPendingAction(a PendingAction) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now().UTC()
	}
	c.PendingActions = append(c.PendingActions, a)
	c.touch()
}

// ResolvePendingActions clears all pending actions and returns them.
func (c *Context) ResolvePendingActions() []PendingAction {
	resolved := c.PendingActions
	c.PendingActions = nil
	if len(resolved) > 0 {
		c.touch()
	}
	return resolved
}

func (c *Context) touch() {
	ts := now().UTC()
	c.UpdatedAt = ts
	c.LastActivity = ts
}

// Clone returns a copy of c that shares no mutable state with it.
// Message metadata and session values are copied one level deep.
func (c *Context) Clone() *Context {
	out := *c
	out.RecentMessages = make([]Message, len(c.RecentMessages))
	for i, m := range c.RecentMessages {
		m.Metadata = maps.Clone(m.Metadata)
		out.RecentMessages[i] = m
	}
	if c.CurrentIntent != nil {
		intent := *c.CurrentIntent
		intent.Entities = maps.Clone(intent.Entities)
		out.CurrentIntent = &intent
	}
	if c.PendingActions != nil {
		out.PendingActions = make([]PendingAction, len(c.PendingActions))
		for i, a := range c.PendingActions {
			a.Parameters = maps.Clone(a.Parameters)
			out.PendingActions[i] = a
		}
	}
	out.SessionData = maps.Clone(c.SessionData)
	return &out
}

// Snapshot is a read-only view of a context handed to external collaborators.
type Snapshot struct {
	ContextID      string
	ConversationID string
	UserID         string
	TenantID       string
	RecentMessages []Message
	CurrentIntent  *Intent
	PendingActions []PendingAction
	SessionData    map[string]any
}

// Snapshot copies the parts of c that collaborators may read.
func (c *Context) Snapshot() Snapshot {
	cp := c.Clone()
	return Snapshot{
		ContextID:      cp.ID,
		ConversationID: cp.ConversationID,
		UserID:         cp.UserID,
		TenantID:       cp.TenantID,
		RecentMessages: cp.RecentMessages,
		CurrentIntent:  cp.CurrentIntent,
		PendingActions: cp.PendingActions,
		SessionData:    cp.SessionData,
	}
}
