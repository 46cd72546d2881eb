package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// Classifier implements orchestrator.Classifier.
type Classifier struct {
	client *Client
}

// NewClassifier returns a Classifier backed by client.
func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// ClassifyIntent asks the model for a JSON intent. Empty text classifies as
// unknown without a model call.
func (c *Classifier) ClassifyIntent(ctx context.Context, text string, snapshot conversation.Snapshot) (*conversation.Intent, error) {
	if strings.TrimSpace(text) == "" {
		return &conversation.Intent{Type: "unknown", SubType: "general"}, nil
	}

	user := fmt.Sprintf("Conversation so far:\n%s\n\nMessage to classify:\n%s", renderHistory(snapshot.RecentMessages), text)
	out, _, err := c.client.complete(ctx, completion{system: classifySystemPrompt, user: user, jsonMode: true, maxTok: 300})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var parsed struct {
		Type       string         `json:"type"`
		SubType    string         `json:"sub_type"`
		Confidence float64        `json:"confidence"`
		Entities   map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(stripFences(out)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: intent: %v", ErrMalformedOutput, err)
	}
	if parsed.Type == "" {
		return nil, fmt.Errorf("%w: intent type missing", ErrMalformedOutput)
	}
	return &conversation.Intent{
		Type:       parsed.Type,
		SubType:    parsed.SubType,
		Confidence: clamp01(parsed.Confidence),
		Entities:   parsed.Entities,
	}, nil
}

// DecisionMaker implements orchestrator.DecisionMaker.
type DecisionMaker struct {
	client *Client
}

// NewDecisionMaker returns a DecisionMaker backed by client.
func NewDecisionMaker(client *Client) *DecisionMaker {
	return &DecisionMaker{client: client}
}

// MakeDecision asks the model which of the allowed functions to call.
func (d *DecisionMaker) MakeDecision(ctx context.Context, in orchestrator.DecisionInput) (*decision.Decision, error) {
	user := fmt.Sprintf("Intent:\n%s\n\nGranted permissions: %s\n\nfunctions:\n%s\n\nConversation so far:\n%s",
		mustJSON(in.Intent),
		strings.Join(in.Granted, ", "),
		mustJSON(in.AllowedFunctions),
		renderHistory(in.Context.RecentMessages),
	)
	out, usage, err := d.client.complete(ctx, completion{system: decideSystemPrompt, user: user, jsonMode: true, maxTok: 800})
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}

	var dec decision.Decision
	if err := json.Unmarshal([]byte(stripFences(out)), &dec); err != nil {
		return nil, fmt.Errorf("%w: decision: %v", ErrMalformedOutput, err)
	}
	if dec.Action == "" {
		dec.Action = "answer"
	}
	dec.Confidence = clamp01(dec.Confidence)
	dec.Usage = usage
	return &dec, nil
}

// Responder implements orchestrator.Responder.
type Responder struct {
	client *Client
}

// NewResponder returns a Responder backed by client.
func NewResponder(client *Client) *Responder {
	return &Responder{client: client}
}

// GenerateResponse writes the reply from successful results and the names of
// failed and denied actions.
func (r *Responder) GenerateResponse(ctx context.Context, in orchestrator.ResponseInput) (*orchestrator.Reply, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", renderHistory(in.Context.RecentMessages))
	fmt.Fprintf(&b, "Intent: %s/%s\n", in.Intent.Type, in.Intent.SubType)
	if in.Decision.Reasoning != "" {
		fmt.Fprintf(&b, "Plan: %s\n", in.Decision.Reasoning)
	}
	fmt.Fprintf(&b, "\nResults:\n%s\n", mustJSON(in.Results))
	if len(in.FailedActions) > 0 {
		fmt.Fprintf(&b, "\nFailed actions: %s\n", strings.Join(in.FailedActions, ", "))
	}
	if len(in.DeniedActions) > 0 {
		fmt.Fprintf(&b, "\nNot permitted: %s\n", strings.Join(in.DeniedActions, ", "))
	}

	out, usage, err := r.client.complete(ctx, completion{system: respondSystemPrompt, user: b.String(), maxTok: 500})
	if err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}
	text := strings.TrimSpace(out)
	if text == "" {
		return nil, ErrEmptyCompletion
	}
	return &orchestrator.Reply{Text: text, Usage: usage}, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

var (
	_ orchestrator.Classifier    = (*Classifier)(nil)
	_ orchestrator.DecisionMaker = (*DecisionMaker)(nil)
	_ orchestrator.Responder     = (*Responder)(nil)
)
