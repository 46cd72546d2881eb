package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

type fixture struct {
	contexts      *conversation.MemoryStore
	decisions     *decision.MemoryStore
	classifier    *MockClassifier
	decider       *MockDecisionMaker
	responder     *MockResponder
	messenger     *MockMessenger
	channels      *MockChannelDirectory
	conversations *MockConversations
	metrics       *Metrics
	logs          *logging.TestLogger
	authority     permissions.Authority

	mu    sync.Mutex
	calls []string
}

func (f *fixture) called(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fixture) handler(name string, result any, err error) registry.Handler {
	return func(context.Context, map[string]any, registry.Principal) (any, error) {
		f.called(name)
		return result, err
	}
}

func (f *fixture) registry() *registry.Registry {
	return registry.MustNew(
		registry.Function{Name: "getHelp", Handler: f.handler("getHelp", "help text", nil)},
		registry.Function{
			Name:               "searchInvoices",
			RequiredPermission: permissions.ViewInvoices,
			Parameters:         `{"type": "object", "properties": {"status": {"type": "string"}}}`,
			Handler:            f.handler("searchInvoices", []map[string]any{{"number": "INV-001"}, {"number": "INV-002"}}, nil),
		},
		registry.Function{Name: "searchTransactions", RequiredPermission: permissions.ViewTransactions, Handler: f.handler("searchTransactions", nil, nil)},
		registry.Function{Name: "approvePayment", RequiredPermission: permissions.ApprovePayments, Handler: f.handler("approvePayment", "approved", nil)},
		registry.Function{Name: "stepA", Handler: f.handler("stepA", "a", nil)},
		registry.Function{Name: "stepB", Handler: f.handler("stepB", nil, errors.New("ledger unavailable"))},
		registry.Function{Name: "stepC", Handler: f.handler("stepC", "c", nil)},
		registry.Function{Name: "explode", Handler: func(context.Context, map[string]any, registry.Principal) (any, error) {
			f.called("explode")
			panic("kaboom")
		}},
	)
}

func newFixture() *fixture {
	return &fixture{
		contexts:      conversation.NewMemoryStore(),
		decisions:     decision.NewMemoryStore(),
		classifier:    &MockClassifier{},
		decider:       &MockDecisionMaker{},
		responder:     &MockResponder{},
		messenger:     &MockMessenger{},
		channels:      &MockChannelDirectory{},
		conversations: &MockConversations{},
		metrics:       NewMetrics(prometheus.NewRegistry()),
		logs:          logging.NewTestLogger(),
		authority:     permissions.StaticAuthority{Set: permissions.FromNames(permissions.ViewInvoices)},
	}
}

func (f *fixture) deps() Deps {
	reg := f.registry()
	return Deps{
		Contexts:      f.contexts,
		Decisions:     f.decisions,
		Registry:      reg,
		Permissions:   permissions.NewResolver(f.authority, reg),
		Classifier:    f.classifier,
		DecisionMaker: f.decider,
		Responder:     f.responder,
		Messenger:     f.messenger,
		Channels:      f.channels,
		Conversations: f.conversations,
	}
}

func (f *fixture) pipeline(t *testing.T, mutate ...func(*Deps)) *Pipeline {
	t.Helper()
	deps := f.deps()
	for _, m := range mutate {
		m(&deps)
	}
	p, err := New(deps, WithLogger(f.logs.Underlying()), WithMetrics(f.metrics), WithMaxRecentMessages(20))
	require.NoError(t, err)
	return p
}

func (f *fixture) expectIntent(text string, intent conversation.Intent) *mock.Call {
	return f.classifier.On("ClassifyIntent", mock.Anything, text, mock.Anything).Return(&intent, nil)
}

func (f *fixture) expectDecision(d decision.Decision) *mock.Call {
	return f.decider.On("MakeDecision", mock.Anything, mock.Anything).Return(&d, nil)
}

func (f *fixture) expectReply(text string) *mock.Call {
	return f.responder.On("GenerateResponse", mock.Anything, mock.Anything).
		Return(&Reply{Text: text, Usage: decision.Usage{Tokens: 30, Model: "gpt-4o-mini"}}, nil)
}

func baseRequest(content string) Request {
	return Request{
		UserID:    "u1",
		ChannelID: "c1",
		TenantID:  "t1",
		Message:   InboundMessage{Content: content},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	f := newFixture()
	deps := f.deps()
	deps.Classifier = nil
	_, err := New(deps)
	assert.Error(t, err)

	deps = f.deps()
	deps.Contexts = nil
	_, err = New(deps)
	assert.Error(t, err)
}

func TestProcessMessage_HappyPath(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("Show unpaid invoices", conversation.Intent{Type: "query", SubType: "invoice_query", Confidence: 0.93})
	f.expectDecision(decision.Decision{
		Action:    "execute_functions",
		Functions: []decision.FunctionCall{{Name: "searchInvoices", Parameters: map[string]any{"status": "unpaid"}}},
		Usage:     decision.Usage{Tokens: 70, Model: "gpt-4o-mini"},
	})
	f.expectReply("You have 2 unpaid invoices.")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("Show unpaid invoices"))
	require.NoError(t, err)

	assert.Equal(t, "You have 2 unpaid invoices.", resp.Text)
	assert.True(t, strings.HasPrefix(resp.ConversationID, PendingConversationPrefix))
	require.Len(t, resp.Actions, 1)
	assert.True(t, resp.Actions[0].Success)
	assert.Equal(t, "query", resp.Metadata.IntentType)
	assert.Equal(t, 0.93, resp.Metadata.Confidence)
	assert.Equal(t, 100, resp.Metadata.TokensUsed)
	assert.Equal(t, "gpt-4o-mini", resp.Metadata.ModelUsed)
	assert.True(t, resp.Metadata.Permissions.ViewInvoices)
	assert.Empty(t, resp.Metadata.PermissionsDenied)

	stored, err := f.contexts.GetByConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(2), stored.Version)
	require.Len(t, stored.RecentMessages, 2)
	assert.Equal(t, conversation.DirectionInbound, stored.RecentMessages[0].Direction)
	assert.Equal(t, conversation.DirectionOutbound, stored.RecentMessages[1].Direction)
	assert.Equal(t, "query", stored.RecentMessages[1].Metadata["intent_type"])
	assert.Equal(t, "execute_functions", stored.RecentMessages[1].Metadata["decision_action"])
	require.NotNil(t, stored.CurrentIntent)
	assert.Equal(t, "invoice_query", stored.CurrentIntent.SubType)

	records := f.decisions.All()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, resp.DecisionID, rec.ID)
	assert.Equal(t, stored.ID, rec.ContextID)
	assert.Equal(t, "You have 2 unpaid invoices.", rec.ResponseText)
	assert.True(t, rec.WasSuccessful())
	assert.Equal(t, 100, rec.TokensUsed)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsTotal.WithLabelValues("searchInvoices", "success")))
}

func TestProcessMessage_OffersOnlyAllowedFunctions(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("hi", conversation.Intent{Type: "query", SubType: "invoice_query"})
	f.decider.On("MakeDecision", mock.Anything, mock.MatchedBy(func(in DecisionInput) bool {
		names := map[string]bool{}
		for _, d := range in.AllowedFunctions {
			names[d.Name] = true
		}
		return names["searchInvoices"] && names["getHelp"] &&
			!names["searchTransactions"] && !names["approvePayment"] &&
			assert.ObjectsAreEqual([]string{permissions.ViewInvoices}, in.Granted)
	})).Return(&decision.Decision{Action: "answer"}, nil)
	f.expectReply("Hello")

	_, err := p.ProcessMessage(context.Background(), baseRequest("hi"))
	require.NoError(t, err)
	f.decider.AssertExpectations(t)
}

func TestProcessMessage_FailSoftActions(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("do things", conversation.Intent{Type: "command"})
	f.expectDecision(decision.Decision{Action: "execute_functions", Functions: []decision.FunctionCall{
		{Name: "stepA"}, {Name: "stepB"}, {Name: "explode"}, {Name: "stepC"},
	}})
	f.responder.On("GenerateResponse", mock.Anything, mock.MatchedBy(func(in ResponseInput) bool {
		if len(in.Results) != 2 || in.Results[0].FunctionName != "stepA" || in.Results[1].FunctionName != "stepC" {
			return false
		}
		return assert.ObjectsAreEqual([]string{"stepB", "explode"}, in.FailedActions)
	})).Return(&Reply{Text: "Partly done"}, nil)

	resp, err := p.ProcessMessage(context.Background(), baseRequest("do things"))
	require.NoError(t, err)

	assert.Equal(t, []string{"stepA", "stepB", "explode", "stepC"}, f.calls)
	require.Len(t, resp.Actions, 4)
	assert.True(t, resp.Actions[0].Success)
	assert.False(t, resp.Actions[1].Success)
	assert.Contains(t, resp.Actions[1].Error, "ledger unavailable")
	assert.False(t, resp.Actions[2].Success)
	assert.NotContains(t, resp.Actions[2].Error, "\n")
	assert.True(t, resp.Actions[3].Success)

	rec := f.decisions.All()[0]
	assert.Len(t, rec.ExecutedActions, 4)
	assert.False(t, rec.WasSuccessful())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsTotal.WithLabelValues("explode", "panic")))
	f.responder.AssertExpectations(t)
}

func TestProcessMessage_PermissionGatingAtExecution(t *testing.T) {
	// The decider proposes a function it was never offered.
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("approve it", conversation.Intent{Type: "command", SubType: "payment_approval"})
	f.expectDecision(decision.Decision{Action: "execute_functions", Functions: []decision.FunctionCall{{Name: "approvePayment"}}})
	f.expectReply("I can't approve payments for you.")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("approve it"))
	require.NoError(t, err)

	assert.NotContains(t, f.calls, "approvePayment")
	require.Len(t, resp.Actions, 1)
	assert.False(t, resp.Actions[0].Success)
	assert.Contains(t, resp.Actions[0].Error, registry.ErrPermissionDenied.Error())
	assert.Equal(t, []string{"approvePayment"}, resp.Metadata.PermissionsDenied)

	// Same failure with a direct registry call.
	_, err = p.registry.Execute(context.Background(), "approvePayment", nil, registry.Principal{Permissions: []string{permissions.ViewInvoices}})
	assert.ErrorIs(t, err, registry.ErrPermissionDenied)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsTotal.WithLabelValues("approvePayment", "denied")))
}

func TestProcessMessage_RoundTripUnpaidInvoices(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("How many unpaid invoices do I have?",
		conversation.Intent{Type: "query", SubType: "transaction_query", Confidence: 0.9})
	f.expectDecision(decision.Decision{Action: "answer", Functions: []decision.FunctionCall{
		{Name: "searchTransactions", Parameters: map[string]any{}},
	}})
	f.responder.On("GenerateResponse", mock.Anything, mock.MatchedBy(func(in ResponseInput) bool {
		return assert.ObjectsAreEqual([]string{"searchTransactions"}, in.DeniedActions)
	})).Return(&Reply{Text: "You don't have access to transactions."}, nil)

	req := Request{
		ConversationID: "",
		UserID:         "u1",
		ChannelID:      "c1",
		TenantID:       "t1",
		Message:        InboundMessage{Content: "How many unpaid invoices do I have?"},
	}
	_, err := p.ProcessMessage(context.Background(), req)
	require.NoError(t, err)

	records := f.decisions.All()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Contains(t, rec.PermissionsDenied, "searchTransactions")
	if len(rec.ExecutedActions) > 0 {
		require.Len(t, rec.ExecutedActions, 1)
		assert.False(t, rec.ExecutedActions[0].Success)
		assert.Contains(t, rec.ExecutedActions[0].Error, "permission denied")
	}
	assert.NotContains(t, f.calls, "searchTransactions")
}

func TestProcessMessage_AuditFailureDoesNotBlock(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, func(d *Deps) {
		d.Decisions = failingDecisionStore{err: errors.New("postgres down")}
	})

	f.expectIntent("hello", conversation.Intent{Type: "greeting"})
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("Hi there")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecisionRecordFailures))
	assert.Equal(t, 1, f.logs.FilterMessage("post-commit callback failed").Len())
}

func TestProcessMessage_ClassificationError(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	boom := errors.New("llm unreachable")
	f.classifier.On("ClassifyIntent", mock.Anything, "hello", mock.Anything).Return(nil, boom)

	resp, err := p.ProcessMessage(context.Background(), baseRequest("hello"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrClassification)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StageClassify, StageOf(err))

	f.decider.AssertNotCalled(t, "MakeDecision", mock.Anything, mock.Anything)
	assert.Empty(t, f.decisions.All())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MessagesTotal.WithLabelValues("failed")))
	f.logs.AssertLogged(t, zapcore.ErrorLevel, "message processing failed")
}

func TestProcessMessage_UpstreamErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(f *fixture)
		deps  func(d *Deps)
		kind  error
		stage Stage
	}{
		{
			name: "permission authority",
			setup: func(f *fixture) {
				f.expectIntent("x", conversation.Intent{Type: "query"})
			},
			deps: func(d *Deps) {
				d.Permissions = permissions.NewResolver(errAuthority{boom}, d.Registry)
			},
			kind:  ErrPermissions,
			stage: StagePermissions,
		},
		{
			name: "decision maker",
			setup: func(f *fixture) {
				f.expectIntent("x", conversation.Intent{Type: "query"})
				f.decider.On("MakeDecision", mock.Anything, mock.Anything).Return(nil, boom)
			},
			kind:  ErrDecision,
			stage: StageDecide,
		},
		{
			name: "responder",
			setup: func(f *fixture) {
				f.expectIntent("x", conversation.Intent{Type: "query"})
				f.expectDecision(decision.Decision{Action: "answer"})
				f.responder.On("GenerateResponse", mock.Anything, mock.Anything).Return(nil, boom)
			},
			kind:  ErrResponse,
			stage: StageRespond,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			var mutate []func(*Deps)
			if tt.deps != nil {
				mutate = append(mutate, tt.deps)
			}
			p := f.pipeline(t, mutate...)

			_, err := p.ProcessMessage(context.Background(), baseRequest("x"))
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.stage, StageOf(err))
			assert.Empty(t, f.decisions.All())
		})
	}
}

type errAuthority struct{ err error }

func (e errAuthority) CheckPermissions(context.Context, string, string, []string) (permissions.PermissionSet, error) {
	return permissions.PermissionSet{}, e.err
}

func TestProcessMessage_SaveConflict(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, func(d *Deps) {
		d.Contexts = conflictingStore{Store: f.contexts}
	})

	f.expectIntent("hello", conversation.Intent{Type: "greeting"})
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("Hi")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("hello"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, conversation.ErrVersionConflict)
	assert.Equal(t, StageSave, StageOf(err))
	assert.Empty(t, f.decisions.All())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionConflicts))
}

func TestProcessMessage_EmptyContent(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("", conversation.Intent{Type: "unknown"})
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("How can I help?")

	resp, err := p.ProcessMessage(context.Background(), baseRequest(""))
	require.NoError(t, err)
	assert.Empty(t, resp.Actions)

	stored, err := f.contexts.GetByConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored.RecentMessages, 1)
	assert.Equal(t, conversation.DirectionOutbound, stored.RecentMessages[0].Direction)
	f.classifier.AssertExpectations(t)
}

func TestProcessMessage_ReusesExistingContext(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("first", conversation.Intent{Type: "query"})
	f.expectIntent("second", conversation.Intent{Type: "query"})
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("ok")

	req := baseRequest("first")
	req.ConversationID = "conv-9"
	first, err := p.ProcessMessage(context.Background(), req)
	require.NoError(t, err)

	req.Message.Content = "second"
	second, err := p.ProcessMessage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ContextID, second.ContextID)
	assert.Equal(t, "conv-9", second.ConversationID)
	assert.Equal(t, 1, f.contexts.Len())

	stored, err := f.contexts.GetByConversation(context.Background(), "conv-9")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	assert.Len(t, stored.RecentMessages, 4)
}

func TestProcessMessage_WindowBounded(t *testing.T) {
	f := newFixture()
	deps := f.deps()
	p, err := New(deps, WithMaxRecentMessages(3))
	require.NoError(t, err)

	f.classifier.On("ClassifyIntent", mock.Anything, mock.Anything, mock.Anything).Return(&conversation.Intent{Type: "query"}, nil)
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("ok")

	req := baseRequest("m")
	req.ConversationID = "conv-w"
	for i := 0; i < 4; i++ {
		_, err := p.ProcessMessage(context.Background(), req)
		require.NoError(t, err)
	}

	stored, err := f.contexts.GetByConversation(context.Background(), "conv-w")
	require.NoError(t, err)
	assert.Len(t, stored.RecentMessages, 3)
}

func TestProcessMessage_InvalidRequest(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	_, err := p.ProcessMessage(context.Background(), Request{UserID: "u1", ChannelID: "c1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.contexts.Len())
	f.classifier.AssertNotCalled(t, "ClassifyIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessMessage_RejectsForeignContext(t *testing.T) {
	tests := []struct {
		name string
		key  conversation.Key
	}{
		{"other tenant", conversation.Key{ConversationID: "conv-x", UserID: "u1", ChannelID: "c1", TenantID: "t2"}},
		{"other user", conversation.Key{ConversationID: "conv-x", UserID: "u2", ChannelID: "c1", TenantID: "t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := f.pipeline(t)
			seeded := conversation.New(tt.key)
			require.NoError(t, f.contexts.Create(context.Background(), seeded))

			req := baseRequest("show me their invoices")
			req.ConversationID = "conv-x"
			_, err := p.ProcessMessage(context.Background(), req)

			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.ErrorIs(t, err, ErrContextOwnership)
			assert.Equal(t, StageContext, StageOf(err))
			f.classifier.AssertNotCalled(t, "ClassifyIntent", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.decisions.All())

			stored, err := f.contexts.GetByConversation(context.Background(), "conv-x")
			require.NoError(t, err)
			assert.Equal(t, int64(1), stored.Version)
			assert.Empty(t, stored.RecentMessages)
		})
	}
}

func TestProcessMessage_UnknownFunctionMetricLabel(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	f.expectIntent("wipe it", conversation.Intent{Type: "command"})
	f.expectDecision(decision.Decision{Action: "execute_functions", Functions: []decision.FunctionCall{
		{Name: "dropAllTables"}, {Name: "getHelp"},
	}})
	f.expectReply("I can't do that.")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("wipe it"))
	require.NoError(t, err)
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, "dropAllTables", resp.Actions[0].FunctionName)
	assert.False(t, resp.Actions[0].Success)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsTotal.WithLabelValues(unknownFunction, actionNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsTotal.WithLabelValues("getHelp", actionSucceeded)))
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.ActionsTotal))
}

func TestProcessMessage_UsesClock(t *testing.T) {
	f := newFixture()
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p, err := New(f.deps(), WithClock(func() time.Time { return ts }))
	require.NoError(t, err)

	f.expectIntent("hi", conversation.Intent{Type: "greeting"})
	f.expectDecision(decision.Decision{Action: "answer"})
	f.expectReply("hello")

	resp, err := p.ProcessMessage(context.Background(), baseRequest("hi"))
	require.NoError(t, err)
	assert.Zero(t, resp.Metadata.ProcessingTime)
	assert.Equal(t, ts, f.decisions.All()[0].CreatedAt)
}

func TestStageError(t *testing.T) {
	cause := errors.New("cause")
	err := stageErr(StageDeliver, ErrDelivery, cause)

	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrHistory)
	assert.Equal(t, "deliver: message delivery failed: cause", err.Error())
	assert.Equal(t, Stage(""), StageOf(cause))
}
