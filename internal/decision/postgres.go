package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Schema creates the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS ai_decisions (
	id TEXT PRIMARY KEY,
	context_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	intent JSONB NOT NULL,
	decision JSONB NOT NULL,
	executed_actions JSONB NOT NULL,
	response_text TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	model_used TEXT,
	processing_time_ms BIGINT NOT NULL,
	permissions_denied TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ai_decisions_conversation_idx ON ai_decisions (conversation_id, created_at DESC);
`

// PostgresStore persists records in the ai_decisions table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the table and index if missing.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, d *AIDecision) error {
	intent, err := json.Marshal(d.Intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	proposal, err := json.Marshal(d.Decision)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	actions, err := json.Marshal(d.ExecutedActions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	denied := d.PermissionsDenied
	if denied == nil {
		denied = []string{}
	}

	query := `
		INSERT INTO ai_decisions (
			id, context_id, conversation_id, tenant_id, user_id,
			intent, decision, executed_actions, response_text,
			tokens_used, model_used, processing_time_ms, permissions_denied, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.ContextID, d.ConversationID, d.TenantID, d.UserID,
		intent, proposal, actions, d.ResponseText,
		d.TokensUsed, d.ModelUsed, d.ProcessingTime.Milliseconds(), pq.Array(denied), d.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

// ListByConversation implements Store.
func (s *PostgresStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*AIDecision, error) {
	query := `
		SELECT id, context_id, conversation_id, tenant_id, user_id,
			intent, decision, executed_actions, response_text,
			tokens_used, COALESCE(model_used, ''), processing_time_ms, permissions_denied, created_at
		FROM ai_decisions
		WHERE conversation_id = $1
		ORDER BY created_at DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*AIDecision, 0)
	for rows.Next() {
		var (
			d                        AIDecision
			intent, proposal, action []byte
			processingMS             int64
			denied                   pq.StringArray
		)
		if err := rows.Scan(
			&d.ID, &d.ContextID, &d.ConversationID, &d.TenantID, &d.UserID,
			&intent, &proposal, &action, &d.ResponseText,
			&d.TokensUsed, &d.ModelUsed, &processingMS, &denied, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(intent, &d.Intent); err != nil {
			return nil, fmt.Errorf("decode intent: %w", err)
		}
		if err := json.Unmarshal(proposal, &d.Decision); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		if err := json.Unmarshal(action, &d.ExecutedActions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
		d.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		d.PermissionsDenied = []string(denied)
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
