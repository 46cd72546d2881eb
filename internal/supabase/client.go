// Package supabase reads and writes the application's tenant data through the
// Supabase REST API: user channels, conversation records and history, tenant
// memberships and the accounting ledger.
package supabase

import (
	"errors"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
)

// Table names.
const (
	tableChannels     = "user_channels"
	tableConversation = "conversations"
	tableMessages     = "conversation_messages"
	tableMembers      = "tenant_members"
	tableInvoices     = "invoices"
	tableSuppliers    = "suppliers"
	tableTransactions = "transactions"
	tableApprovals    = "payment_approvals"
)

// querier is the part of the Supabase client this package uses. Both
// *supabase.Client and *postgrest.Client satisfy it.
type querier interface {
	From(table string) *postgrest.QueryBuilder
}

// Client implements the orchestrator's channel directory and conversation
// manager, the CEL authority's role source and the function ledger.
type Client struct {
	db  querier
	now func() time.Time
}

// New creates a Client from configuration.
func New(cfg config.SupabaseConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase URL is required")
	}
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey.Value(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return newClient(client), nil
}

// NewFromREST wraps a bare PostgREST client, e.g. one pointed at a
// self-hosted PostgREST instead of Supabase.
func NewFromREST(rest *postgrest.Client) *Client {
	return newClient(rest)
}

func newClient(db querier) *Client {
	return &Client{db: db, now: time.Now}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
