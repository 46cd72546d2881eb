// Package decision defines the decision proposed for a message, the results of
// executing it, and the append-only audit record of each completed run.
package decision

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
)

var (
	// ErrDuplicate is returned when a record with the same id was already saved.
	ErrDuplicate = errors.New("decision: record already exists")
)

// Usage is the token consumption reported by a model call.
type Usage struct {
	Tokens int    `json:"tokens"`
	Model  string `json:"model,omitempty"`
}

// Add sums token counts. The model of u wins when set.
func (u Usage) Add(o Usage) Usage {
	out := Usage{Tokens: u.Tokens + o.Tokens, Model: u.Model}
	if out.Model == "" {
		out.Model = o.Model
	}
	return out
}

// FunctionCall is one function invocation proposed by the decision maker.
type FunctionCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Decision is what the decision maker proposes for a message.
type Decision struct {
	Action     string         `json:"action"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Confidence float64        `json:"confidence"`
	Functions  []FunctionCall `json:"functions,omitempty"`
	Usage      Usage          `json:"usage"`
}

// ActionResult is the outcome of executing one proposed function.
type ActionResult struct {
	FunctionName  string        `json:"function_name"`
	Success       bool          `json:"success"`
	Result        any           `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// AIDecision is the immutable audit record of one completed run.
type AIDecision struct {
	ID                string              `json:"id"`
	ContextID         string              `json:"context_id"`
	ConversationID    string              `json:"conversation_id"`
	TenantID          string              `json:"tenant_id"`
	UserID            string              `json:"user_id"`
	Intent            conversation.Intent `json:"intent"`
	Decision          Decision            `json:"decision"`
	ExecutedActions   []ActionResult      `json:"executed_actions"`
	ResponseText      string              `json:"response_text"`
	TokensUsed        int                 `json:"tokens_used"`
	ModelUsed         string              `json:"model_used,omitempty"`
	ProcessingTime    time.Duration       `json:"processing_time"`
	PermissionsDenied []string            `json:"permissions_denied"`
	CreatedAt         time.Time           `json:"created_at"`
}

// WasSuccessful reports whether every executed action succeeded. A record
// with no actions is successful.
func (d *AIDecision) WasSuccessful() bool {
	for _, a := range d.ExecutedActions {
		if !a.Success {
			return false
		}
	}
	return true
}

// Store is an append-only sink for audit records.
type Store interface {
	Save(ctx context.Context, d *AIDecision) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*AIDecision, error)
}
