package orchestrator

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

// InboundMessage is the user's message.
type InboundMessage struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Request is one message to process. ConversationID may be empty.
type Request struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	UserID         string         `json:"user_id"`
	ChannelID      string         `json:"channel_id"`
	TenantID       string         `json:"tenant_id"`
	Message        InboundMessage `json:"message"`
}

func (r Request) validate() error {
	switch {
	case r.TenantID == "":
		return stageErr(StageValidate, ErrInvalidRequest, errMissing("tenant_id"))
	case r.UserID == "":
		return stageErr(StageValidate, ErrInvalidRequest, errMissing("user_id"))
	case r.ChannelID == "":
		return stageErr(StageValidate, ErrInvalidRequest, errMissing("channel_id"))
	}
	return nil
}

type errMissing string

func (e errMissing) Error() string { return string(e) + " is required" }

// ActionSummary describes one executed function in a Response.
type ActionSummary struct {
	FunctionName  string        `json:"function_name"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// ResponseMetadata carries observability data about a run.
type ResponseMetadata struct {
	IntentType        string                    `json:"intent_type"`
	IntentSubType     string                    `json:"intent_sub_type"`
	Confidence        float64                   `json:"confidence"`
	ProcessingTime    time.Duration             `json:"processing_time"`
	TokensUsed        int                       `json:"tokens_used"`
	ModelUsed         string                    `json:"model_used,omitempty"`
	Permissions       permissions.PermissionSet `json:"permissions"`
	PermissionsDenied []string                  `json:"permissions_denied"`
}

// Response is the result of processing a message.
type Response struct {
	ConversationID string           `json:"conversation_id"`
	ContextID      string           `json:"context_id"`
	DecisionID     string           `json:"decision_id"`
	Text           string           `json:"text"`
	Actions        []ActionSummary  `json:"actions"`
	Metadata       ResponseMetadata `json:"metadata"`
}

// ChannelMessage is a message received on an external channel.
type ChannelMessage struct {
	From              string    `json:"from"`
	To                string    `json:"to,omitempty"`
	Body              string    `json:"body"`
	Channel           string    `json:"channel"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Job is a queued channel message.
type Job struct {
	ID      string         `json:"id"`
	Message ChannelMessage `json:"message"`
}

// Channel is a registered user channel, e.g. a verified WhatsApp number.
type Channel struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TenantID   string `json:"tenant_id"`
	ExternalID string `json:"external_id"`
	Type       string `json:"type"`
	IsVerified bool   `json:"is_verified"`
}

// ConversationKey identifies the conversation of a user on a channel.
type ConversationKey struct {
	UserID    string
	ChannelID string
	TenantID  string
}

// Conversation is a conversation record owned by the surrounding application.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryMessage is one entry of the persistent conversation history.
type HistoryMessage struct {
	Direction conversation.Direction `json:"direction"`
	Content   string                 `json:"content"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// OutboundMessage is sent to a user through a Messenger.
type OutboundMessage struct {
	Text     string         `json:"text"`
	Channel  string         `json:"channel,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeliveryResult is the messenger's acknowledgement.
type DeliveryResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// DecisionInput is handed to the DecisionMaker.
type DecisionInput struct {
	Intent           conversation.Intent
	Context          conversation.Snapshot
	Permissions      permissions.PermissionSet
	Granted          []string
	AllowedFunctions []registry.Definition
}

// ActionOutput is the payload of a successful action as seen by the Responder.
type ActionOutput struct {
	FunctionName string `json:"function_name"`
	Result       any    `json:"result"`
}

// ResponseInput is handed to the Responder. Failed actions are named but
// their errors are withheld.
type ResponseInput struct {
	Intent        conversation.Intent
	Decision      decision.Decision
	Results       []ActionOutput
	FailedActions []string
	DeniedActions []string
	Context       conversation.Snapshot
}

// Reply is the responder's answer.
type Reply struct {
	Text  string
	Usage decision.Usage
}

// Classifier reads the intent of a message.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string, snapshot conversation.Snapshot) (*conversation.Intent, error)
}

// DecisionMaker proposes which functions to call.
type DecisionMaker interface {
	MakeDecision(ctx context.Context, in DecisionInput) (*decision.Decision, error)
}

// Responder writes the reply text.
type Responder interface {
	GenerateResponse(ctx context.Context, in ResponseInput) (*Reply, error)
}

// Messenger delivers messages to users on external channels.
type Messenger interface {
	SendMessage(ctx context.Context, destination string, msg OutboundMessage) (*DeliveryResult, error)
	SendRegistrationPrompt(ctx context.Context, destination string) error
}

// ChannelDirectory resolves senders to registered channels. An unknown
// sender yields (nil, nil).
type ChannelDirectory interface {
	FindByExternalID(ctx context.Context, externalID string) (*Channel, error)
}

// Conversations manages conversation records and their history.
type Conversations interface {
	Create(ctx context.Context, key ConversationKey) (*Conversation, error)
	ResolveOrCreate(ctx context.Context, key ConversationKey) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg HistoryMessage) error
}
