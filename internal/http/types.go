package http

import (
	"encoding/json"

	"github.com/fyrsmithlabs/ledgerd/internal/decision"
)

// MessageRequest is the request body for POST /api/v1/messages.
type MessageRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id"`
	ChannelID      string         `json:"channel_id"`
	TenantID       string         `json:"tenant_id"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// FunctionInfo describes one callable function.
type FunctionInfo struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	RequiredPermission string          `json:"required_permission,omitempty"`
	Parameters         json.RawMessage `json:"parameters,omitempty"`
}

// FunctionsResponse is the response body for GET /api/v1/functions.
type FunctionsResponse struct {
	Functions []FunctionInfo `json:"functions"`
}

// DecisionsResponse is the response body for
// GET /api/v1/conversations/:id/decisions.
type DecisionsResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Decisions      []*decision.AIDecision `json:"decisions"`
}

// InboundRequest is the request body for POST /api/v1/channels/:channel/inbound.
type InboundRequest struct {
	From              string `json:"from"`
	To                string `json:"to,omitempty"`
	Body              string `json:"body"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
}

// InboundResponse acknowledges a queued inbound message.
type InboundResponse struct {
	JobID string `json:"job_id"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for failed pipeline calls.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}
