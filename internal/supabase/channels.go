package supabase

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

type channelRow struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	TenantID    string `json:"tenant_id"`
	ExternalID  string `json:"external_id"`
	ChannelType string `json:"channel_type"`
	IsVerified  bool   `json:"is_verified"`
}

// FindByExternalID returns the channel registered for externalID, such as a
// WhatsApp number, or nil when the sender is unknown.
func (c *Client) FindByExternalID(_ context.Context, externalID string) (*orchestrator.Channel, error) {
	var rows []channelRow
	_, err := c.db.From(tableChannels).
		Select("*", "", false).
		Eq("external_id", externalID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	return &orchestrator.Channel{
		ID:         r.ID,
		UserID:     r.UserID,
		TenantID:   r.TenantID,
		ExternalID: r.ExternalID,
		Type:       r.ChannelType,
		IsVerified: r.IsVerified,
	}, nil
}

var _ orchestrator.ChannelDirectory = (*Client)(nil)
