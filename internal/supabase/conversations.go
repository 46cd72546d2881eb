package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

const statusActive = "active"

type conversationRow struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (r conversationRow) conversation() *orchestrator.Conversation {
	return &orchestrator.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		ChannelID: r.ChannelID,
		TenantID:  r.TenantID,
		CreatedAt: r.CreatedAt,
	}
}

type messageRow struct {
	ConversationID string         `json:"conversation_id"`
	Direction      string         `json:"direction"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// Create inserts a new active conversation for key.
func (c *Client) Create(_ context.Context, key orchestrator.ConversationKey) (*orchestrator.Conversation, error) {
	row := map[string]any{
		"user_id":    key.UserID,
		"tenant_id":  key.TenantID,
		"status":     statusActive,
		"created_at": c.timestamp(),
	}
	if key.ChannelID != "" {
		row["channel_id"] = key.ChannelID
	}

	var created []conversationRow
	_, err := c.db.From(tableConversation).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if len(created) == 0 {
		return nil, errors.New("failed to create conversation: no row returned")
	}
	return created[0].conversation(), nil
}

// ResolveOrCreate returns the most recent active conversation for key,
// creating one if there is none.
func (c *Client) ResolveOrCreate(ctx context.Context, key orchestrator.ConversationKey) (*orchestrator.Conversation, error) {
	var rows []conversationRow
	_, err := c.db.From(tableConversation).
		Select("*", "", false).
		Eq("user_id", key.UserID).
		Eq("channel_id", key.ChannelID).
		Eq("tenant_id", key.TenantID).
		Eq("status", statusActive).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	if len(rows) > 0 {
		return rows[0].conversation(), nil
	}
	return c.Create(ctx, key)
}

// AppendMessage records msg in the conversation history.
func (c *Client) AppendMessage(_ context.Context, conversationID string, msg orchestrator.HistoryMessage) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	row := messageRow{
		ConversationID: conversationID,
		Direction:      string(msg.Direction),
		Content:        msg.Content,
		Metadata:       msg.Metadata,
		CreatedAt:      createdAt.UTC().Format(time.RFC3339Nano),
	}

	_, _, err := c.db.From(tableMessages).
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

var _ orchestrator.Conversations = (*Client)(nil)
