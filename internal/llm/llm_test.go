package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

// fakeModel replays canned completions and records prompts.
type fakeModel struct {
	replies []string
	err     error
	prompts []string
	roles   [][]schema.ChatMessageType
	system  []string
	calls   int
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var (
		b     strings.Builder
		roles []schema.ChatMessageType
	)
	for _, m := range messages {
		roles = append(roles, m.Role)
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				if m.Role == schema.ChatMessageTypeSystem {
					f.system = append(f.system, tp.Text)
				}
				b.WriteString(tp.Text)
				b.WriteString("\n")
			}
		}
	}
	f.prompts = append(f.prompts, b.String())
	f.roles = append(f.roles, roles)

	reply := ""
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        reply,
		StopReason:     "stop",
		GenerationInfo: map[string]any{"PromptTokens": 40, "CompletionTokens": 12},
	}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func snapshot() conversation.Snapshot {
	return conversation.Snapshot{RecentMessages: []conversation.Message{
		{Content: "hi", Direction: conversation.DirectionInbound},
		{Content: "Hello! How can I help?", Direction: conversation.DirectionOutbound},
	}}
}

func TestClassifier(t *testing.T) {
	model := &fakeModel{replies: []string{"```json\n{\"type\":\"query\",\"sub_type\":\"invoice_query\",\"confidence\":1.4,\"entities\":{\"status\":\"unpaid\"}}\n```"}}
	c := NewClassifier(NewClient(model, "gpt-4o-mini"))

	intent, err := c.ClassifyIntent(context.Background(), "How many unpaid invoices?", snapshot())
	require.NoError(t, err)
	assert.Equal(t, "query", intent.Type)
	assert.Equal(t, "invoice_query", intent.SubType)
	assert.Equal(t, 1.0, intent.Confidence)
	assert.Equal(t, "unpaid", intent.Entities["status"])
	assert.Contains(t, model.prompts[0], "assistant: Hello! How can I help?")
	assert.Contains(t, model.prompts[0], "How many unpaid invoices?")
}

func TestClient_MessageRoles(t *testing.T) {
	model := &fakeModel{replies: []string{`{"type":"query","sub_type":"invoice_query","confidence":0.9}`, "Done."}}
	client := NewClient(model, "m")

	_, err := NewClassifier(client).ClassifyIntent(context.Background(), "unpaid invoices?", conversation.Snapshot{})
	require.NoError(t, err)
	_, err = NewResponder(client).GenerateResponse(context.Background(), orchestrator.ResponseInput{})
	require.NoError(t, err)

	require.Len(t, model.roles, 2)
	for _, roles := range model.roles {
		assert.Equal(t, []schema.ChatMessageType{schema.ChatMessageTypeSystem, schema.ChatMessageTypeHuman}, roles)
	}
	require.Len(t, model.system, 2)
	assert.True(t, strings.HasSuffix(model.system[0], jsonOnlyInstruction), "structured call must ask for JSON")
	assert.False(t, strings.HasSuffix(model.system[1], jsonOnlyInstruction), "free-text reply must not ask for JSON")
}

func TestClassifier_EmptyTextSkipsModel(t *testing.T) {
	model := &fakeModel{}
	c := NewClassifier(NewClient(model, "m"))

	intent, err := c.ClassifyIntent(context.Background(), "  ", conversation.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "unknown", intent.Type)
	assert.Zero(t, model.calls)
}

func TestClassifier_Errors(t *testing.T) {
	boom := errors.New("503")
	c := NewClassifier(NewClient(&fakeModel{err: boom}, "m"))
	_, err := c.ClassifyIntent(context.Background(), "hi", conversation.Snapshot{})
	assert.ErrorIs(t, err, boom)

	c = NewClassifier(NewClient(&fakeModel{replies: []string{"not json"}}, "m"))
	_, err = c.ClassifyIntent(context.Background(), "hi", conversation.Snapshot{})
	assert.ErrorIs(t, err, ErrMalformedOutput)

	c = NewClassifier(NewClient(&fakeModel{replies: []string{`{"confidence": 0.5}`}}, "m"))
	_, err = c.ClassifyIntent(context.Background(), "hi", conversation.Snapshot{})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestDecisionMaker(t *testing.T) {
	model := &fakeModel{replies: []string{`{"action":"execute_functions","reasoning":"list unpaid","confidence":0.8,
		"functions":[{"name":"searchInvoices","parameters":{"status":"unpaid"}}]}`}}
	d := NewDecisionMaker(NewClient(model, "gpt-4o-mini"))

	fn := registry.Function{Name: "searchInvoices", Description: "Search invoices", Parameters: `{"type":"object"}`}
	dec, err := d.MakeDecision(context.Background(), orchestrator.DecisionInput{
		Intent:           conversation.Intent{Type: "query", SubType: "invoice_query"},
		Granted:          []string{"view:invoices"},
		AllowedFunctions: []registry.Definition{fn.Definition()},
	})
	require.NoError(t, err)
	assert.Equal(t, "execute_functions", dec.Action)
	require.Len(t, dec.Functions, 1)
	assert.Equal(t, "unpaid", dec.Functions[0].Parameters["status"])
	assert.Equal(t, decision.Usage{Tokens: 52, Model: "gpt-4o-mini"}, dec.Usage)
	assert.Contains(t, model.prompts[0], `"name": "searchInvoices"`)
	assert.Contains(t, model.prompts[0], "view:invoices")
}

func TestDecisionMaker_DefaultsAction(t *testing.T) {
	d := NewDecisionMaker(NewClient(&fakeModel{replies: []string{`{}`}}, "m"))
	dec, err := d.MakeDecision(context.Background(), orchestrator.DecisionInput{})
	require.NoError(t, err)
	assert.Equal(t, "answer", dec.Action)
	assert.Empty(t, dec.Functions)
}

func TestResponder(t *testing.T) {
	model := &fakeModel{replies: []string{"  You have 2 unpaid invoices.  "}}
	r := NewResponder(NewClient(model, "gpt-4o-mini"))

	reply, err := r.GenerateResponse(context.Background(), orchestrator.ResponseInput{
		Intent:        conversation.Intent{Type: "query", SubType: "invoice_query"},
		Results:       []orchestrator.ActionOutput{{FunctionName: "searchInvoices", Result: []string{"INV-1", "INV-2"}}},
		FailedActions: []string{"generateReport"},
		DeniedActions: []string{"searchTransactions"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You have 2 unpaid invoices.", reply.Text)
	assert.Equal(t, 52, reply.Usage.Tokens)
	assert.Contains(t, model.prompts[0], "Failed actions: generateReport")
	assert.Contains(t, model.prompts[0], "Not permitted: searchTransactions")
	assert.Contains(t, model.prompts[0], "INV-2")
}

func TestResponder_EmptyReply(t *testing.T) {
	r := NewResponder(NewClient(&fakeModel{replies: []string{" "}}, "m"))
	_, err := r.GenerateResponse(context.Background(), orchestrator.ResponseInput{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	model := &fakeModel{replies: []string{"a", "b"}}
	c := NewClient(model, "m", WithRateLimit(0.001, 1))

	_, _, err := c.complete(context.Background(), completion{system: "s", user: "u"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = c.complete(ctx, completion{system: "s", user: "u"})
	assert.Error(t, err)
	assert.Equal(t, 1, model.calls)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1} `))
}

func TestTotalTokens(t *testing.T) {
	assert.Equal(t, 9, totalTokens(map[string]any{"TotalTokens": 9, "PromptTokens": 1}))
	assert.Equal(t, 3, totalTokens(map[string]any{"PromptTokens": 1, "CompletionTokens": 2}))
	assert.Zero(t, totalTokens(nil))
}

func TestNewOpenAI(t *testing.T) {
	_, err := NewOpenAI(config.LLMConfig{})
	assert.Error(t, err)

	model, err := NewOpenAI(config.LLMConfig{BaseURL: "http://localhost:1234/v1", Model: "local"})
	require.NoError(t, err)
	assert.NotNil(t, model)
}
