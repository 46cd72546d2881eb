package supabase

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
)

type memberRow struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// RoleFor returns the user's role in the tenant. Users without a membership
// row get permissions.ErrNoMembership.
func (c *Client) RoleFor(_ context.Context, userID, tenantID string) (permissions.Role, error) {
	var rows []memberRow
	_, err := c.db.From(tableMembers).
		Select("role,permissions", "", false).
		Eq("user_id", userID).
		Eq("tenant_id", tenantID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return permissions.Role{}, fmt.Errorf("failed to get membership: %w", err)
	}
	if len(rows) == 0 {
		return permissions.Role{}, permissions.ErrNoMembership
	}
	return permissions.Role{Name: rows[0].Role, Grants: rows[0].Permissions}, nil
}

var _ permissions.RoleSource = (*Client)(nil)
