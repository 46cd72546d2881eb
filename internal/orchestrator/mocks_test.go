package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
)

// MockClassifier is a mock implementation of Classifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) ClassifyIntent(ctx context.Context, text string, snapshot conversation.Snapshot) (*conversation.Intent, error) {
	args := m.Called(ctx, text, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Intent), args.Error(1)
}

// MockDecisionMaker is a mock implementation of DecisionMaker
type MockDecisionMaker struct {
	mock.Mock
}

func (m *MockDecisionMaker) MakeDecision(ctx context.Context, in DecisionInput) (*decision.Decision, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decision.Decision), args.Error(1)
}

// MockResponder is a mock implementation of Responder
type MockResponder struct {
	mock.Mock
}

func (m *MockResponder) GenerateResponse(ctx context.Context, in ResponseInput) (*Reply, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Reply), args.Error(1)
}

// MockMessenger is a mock implementation of Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendMessage(ctx context.Context, destination string, msg OutboundMessage) (*DeliveryResult, error) {
	args := m.Called(ctx, destination, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DeliveryResult), args.Error(1)
}

func (m *MockMessenger) SendRegistrationPrompt(ctx context.Context, destination string) error {
	args := m.Called(ctx, destination)
	return args.Error(0)
}

// MockChannelDirectory is a mock implementation of ChannelDirectory
type MockChannelDirectory struct {
	mock.Mock
}

func (m *MockChannelDirectory) FindByExternalID(ctx context.Context, externalID string) (*Channel, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Channel), args.Error(1)
}

// MockConversations is a mock implementation of Conversations
type MockConversations struct {
	mock.Mock
}

func (m *MockConversations) Create(ctx context.Context, key ConversationKey) (*Conversation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Conversation), args.Error(1)
}

func (m *MockConversations) ResolveOrCreate(ctx context.Context, key ConversationKey) (*Conversation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Conversation), args.Error(1)
}

func (m *MockConversations) AppendMessage(ctx context.Context, conversationID string, msg HistoryMessage) error {
	args := m.Called(ctx, conversationID, msg)
	return args.Error(0)
}

// failingDecisionStore rejects every save.
type failingDecisionStore struct {
	err error
}

func (f failingDecisionStore) Save(context.Context, *decision.AIDecision) error { return f.err }

func (f failingDecisionStore) ListByConversation(context.Context, string, int) ([]*decision.AIDecision, error) {
	return nil, f.err
}

// conflictingStore wraps a store and fails every Save with a version conflict.
type conflictingStore struct {
	conversation.Store
}

func (conflictingStore) Save(context.Context, *conversation.Context) error {
	return conversation.ErrVersionConflict
}
