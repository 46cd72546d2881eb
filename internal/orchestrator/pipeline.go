package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/decision"
	"github.com/fyrsmithlabs/ledgerd/internal/hooks"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
	"github.com/fyrsmithlabs/ledgerd/internal/permissions"
	"github.com/fyrsmithlabs/ledgerd/internal/registry"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/ledgerd/internal/orchestrator"

	// DefaultMaxRecentMessages is the size of the context window.
	DefaultMaxRecentMessages = 20

	// PendingConversationPrefix marks contexts created without a conversation.
	PendingConversationPrefix = "pending:"

	recordDecisionCallback = "record_decision"
)

// Deps are the pipeline's collaborators. Messenger, Channels and
// Conversations are only needed by ProcessSync and ProcessAsync.
type Deps struct {
	Contexts      conversation.Store
	Decisions     decision.Store
	Registry      *registry.Registry
	Permissions   *permissions.Resolver
	Classifier    Classifier
	DecisionMaker DecisionMaker
	Responder     Responder
	Messenger     Messenger
	Channels      ChannelDirectory
	Conversations Conversations
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMaxRecentMessages sets the context window size.
func WithMaxRecentMessages(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxRecent = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline processes inbound messages. It is safe for concurrent use; each
// call owns its own context copy and post-commit queue.
type Pipeline struct {
	contexts      conversation.Store
	decisions     decision.Store
	registry      *registry.Registry
	permissions   *permissions.Resolver
	classifier    Classifier
	decider       DecisionMaker
	responder     Responder
	messenger     Messenger
	channels      ChannelDirectory
	conversations Conversations

	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	maxRecent int
	now       func() time.Time
}

// New builds a Pipeline.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Contexts == nil:
		return nil, errors.New("context store is required")
	case deps.Decisions == nil:
		return nil, errors.New("decision store is required")
	case deps.Registry == nil:
		return nil, errors.New("function registry is required")
	case deps.Permissions == nil:
		return nil, errors.New("permission resolver is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.DecisionMaker == nil:
		return nil, errors.New("decision maker is required")
	case deps.Responder == nil:
		return nil, errors.New("responder is required")
	}

	p := &Pipeline{
		contexts:      deps.Contexts,
		decisions:     deps.Decisions,
		registry:      deps.Registry,
		permissions:   deps.Permissions,
		classifier:    deps.Classifier,
		decider:       deps.DecisionMaker,
		responder:     deps.Responder,
		messenger:     deps.Messenger,
		channels:      deps.Channels,
		conversations: deps.Conversations,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer(instrumentationName),
		maxRecent:     DefaultMaxRecentMessages,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run holds the state collected while processing one message.
type run struct {
	start      time.Time
	req        Request
	octx       *conversation.Context
	intent     conversation.Intent
	granted    permissions.PermissionSet
	flat       []string
	decision   decision.Decision
	results    []decision.ActionResult
	denied     []string
	reply      Reply
	usage      decision.Usage
	decisionID string
	elapsed    time.Duration
	principal  registry.Principal
}

// ProcessMessage runs the full pipeline for one message. It does not deliver
// the reply anywhere.
func (p *Pipeline) ProcessMessage(ctx context.Context, req Request) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "orchestrator.ProcessMessage", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("user.id", req.UserID),
		attribute.String("channel.id", req.ChannelID),
	))
	defer span.End()

	ctx = logging.WithCorrelation(ctx, logging.Correlation{
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
	})

	resp, err := p.processMessage(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.recordMessage("failed")
		p.logger.Error("message processing failed",
			append(logging.ContextFields(ctx),
				zap.String("stage", string(StageOf(err))),
				zap.Error(err))...)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("conversation.id", resp.ConversationID),
		attribute.String("intent.type", resp.Metadata.IntentType),
		attribute.Int("actions", len(resp.Actions)),
	)
	p.metrics.recordMessage("processed")
	return resp, nil
}

func (p *Pipeline) processMessage(ctx context.Context, req Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	r := &run{start: p.now(), req: req, decisionID: uuid.New().String()}

	octx, err := p.resolveContext(ctx, req)
	if errors.Is(err, ErrContextOwnership) {
		return nil, stageErr(StageContext, ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, stageErr(StageContext, ErrPersistence, err)
	}
	r.octx = octx
	ctx = logging.WithCorrelation(ctx, logging.Correlation{ConversationID: octx.ConversationID})

	content := req.Message.Content
	if content != "" {
		octx.AppendMessage(conversation.Message{
			Content:   content,
			Direction: conversation.DirectionInbound,
			Timestamp: r.start.UTC(),
			Metadata:  req.Message.Metadata,
		}, p.maxRecent)
	}

	if err := p.classify(ctx, r, content); err != nil {
		return nil, err
	}
	if err := p.resolvePermissions(ctx, r); err != nil {
		return nil, err
	}
	if err := p.decide(ctx, r); err != nil {
		return nil, err
	}

	r.results = p.executeActions(ctx, r.decision.Functions, r.principal)

	if err := p.respond(ctx, r); err != nil {
		return nil, err
	}

	octx.AppendMessage(conversation.Message{
		Content:   r.reply.Text,
		Direction: conversation.DirectionOutbound,
		Timestamp: p.now().UTC(),
		Metadata: map[string]any{
			"intent_type":     r.intent.Type,
			"decision_action": r.decision.Action,
			"decision_id":     r.decisionID,
		},
	}, p.maxRecent)

	if err := p.saveContext(ctx, r); err != nil {
		return nil, err
	}

	r.elapsed = p.now().Sub(r.start)
	record := p.buildRecord(r)

	// One queue per run; it is drained before ProcessMessage returns.
	post := hooks.NewPostCommit(p.logger)
	post.Schedule(recordDecisionCallback, func(ctx context.Context) error {
		return p.decisions.Save(ctx, record)
	})
	for _, o := range post.Run(ctx) {
		if !o.OK() && o.Name == recordDecisionCallback {
			p.metrics.recordDecisionFailure()
		}
	}

	return p.buildResponse(r, record.ID), nil
}

// resolveContext loads the context of the request's conversation, creating
// it when missing. A Create that loses a race falls back to the winner. A
// context owned by another user or tenant is never returned.
func (p *Pipeline) resolveContext(ctx context.Context, req Request) (*conversation.Context, error) {
	defer p.metrics.observeStage(StageContext, time.Now())

	if req.ConversationID != "" {
		existing, err := p.contexts.GetByConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := checkOwner(existing, req); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	convID := req.ConversationID
	if convID == "" {
		convID = PendingConversationPrefix + uuid.New().String()
	}
	octx := conversation.New(conversation.Key{
		ConversationID: convID,
		UserID:         req.UserID,
		ChannelID:      req.ChannelID,
		TenantID:       req.TenantID,
	})

	err := p.contexts.Create(ctx, octx)
	if errors.Is(err, conversation.ErrAlreadyExists) {
		existing, getErr := p.contexts.GetByConversation(ctx, convID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, err
		}
		if err := checkOwner(existing, req); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debug("created orchestration context",
		append(logging.ContextFields(ctx),
			zap.String("context_id", octx.ID),
			zap.String("conversation_id", convID))...)
	return octx, nil
}

func checkOwner(octx *conversation.Context, req Request) error {
	if octx.TenantID != req.TenantID || octx.UserID != req.UserID {
		return fmt.Errorf("%w: conversation %s", ErrContextOwnership, octx.ConversationID)
	}
	return nil
}

func (p *Pipeline) classify(ctx context.Context, r *run, content string) error {
	ctx, span := p.tracer.Start(ctx, "orchestrator.classify")
	defer span.End()
	defer p.metrics.observeStage(StageClassify, time.Now())

	intent, err := p.classifier.ClassifyIntent(ctx, content, r.octx.Snapshot())
	if err == nil && intent == nil {
		err = errors.New("classifier returned no intent")
	}
	if err != nil {
		span.RecordError(err)
		return stageErr(StageClassify, ErrClassification, err)
	}

	r.intent = *intent
	r.octx.SetIntent(*intent)
	span.SetAttributes(
		attribute.String("intent.type", intent.Type),
		attribute.String("intent.sub_type", intent.SubType),
		attribute.Float64("intent.confidence", intent.Confidence),
	)
	return nil
}

func (p *Pipeline) resolvePermissions(ctx context.Context, r *run) error {
	ctx, span := p.tracer.Start(ctx, "orchestrator.permissions")
	defer span.End()
	defer p.metrics.observeStage(StagePermissions, time.Now())

	required := p.permissions.RequiredPermissions(r.intent)
	granted, err := p.permissions.GrantedPermissions(ctx, r.req.UserID, r.req.TenantID, required)
	if err != nil {
		span.RecordError(err)
		return stageErr(StagePermissions, ErrPermissions, err)
	}

	r.granted = granted
	r.flat = permissions.Flatten(granted)
	r.principal = registry.Principal{
		UserID:      r.req.UserID,
		TenantID:    r.req.TenantID,
		Permissions: r.flat,
	}
	span.SetAttributes(attribute.StringSlice("permissions.granted", r.flat))
	return nil
}

func (p *Pipeline) decide(ctx context.Context, r *run) error {
	ctx, span := p.tracer.Start(ctx, "orchestrator.decide")
	defer span.End()
	defer p.metrics.observeStage(StageDecide, time.Now())

	allowed := p.registry.ForPermissions(r.flat)
	d, err := p.decider.MakeDecision(ctx, DecisionInput{
		Intent:           r.intent,
		Context:          r.octx.Snapshot(),
		Permissions:      r.granted,
		Granted:          r.flat,
		AllowedFunctions: registry.Definitions(allowed),
	})
	if err == nil && d == nil {
		err = errors.New("decision maker returned no decision")
	}
	if err != nil {
		span.RecordError(err)
		return stageErr(StageDecide, ErrDecision, err)
	}

	r.decision = *d
	r.usage = r.usage.Add(d.Usage)
	span.SetAttributes(
		attribute.String("decision.action", d.Action),
		attribute.Int("decision.functions", len(d.Functions)),
	)
	return nil
}

func (p *Pipeline) respond(ctx context.Context, r *run) error {
	ctx, span := p.tracer.Start(ctx, "orchestrator.respond")
	defer span.End()
	defer p.metrics.observeStage(StageRespond, time.Now())

	r.denied = p.permissions.DeniedFunctionNames(&r.decision, r.flat)

	in := ResponseInput{
		Intent:        r.intent,
		Decision:      r.decision,
		Results:       []ActionOutput{},
		DeniedActions: r.denied,
		Context:       r.octx.Snapshot(),
	}
	for _, res := range r.results {
		if res.Success {
			in.Results = append(in.Results, ActionOutput{FunctionName: res.FunctionName, Result: res.Result})
		} else {
			in.FailedActions = append(in.FailedActions, res.FunctionName)
		}
	}

	reply, err := p.responder.GenerateResponse(ctx, in)
	if err == nil && reply == nil {
		err = errors.New("responder returned no reply")
	}
	if err != nil {
		span.RecordError(err)
		return stageErr(StageRespond, ErrResponse, err)
	}

	r.reply = *reply
	r.usage = r.usage.Add(reply.Usage)
	return nil
}

func (p *Pipeline) saveContext(ctx context.Context, r *run) error {
	defer p.metrics.observeStage(StageSave, time.Now())

	err := p.contexts.Save(ctx, r.octx)
	if errors.Is(err, conversation.ErrVersionConflict) {
		p.metrics.recordVersionConflict()
		p.logger.Warn("context version conflict",
			append(logging.ContextFields(ctx),
				zap.String("context_id", r.octx.ID),
				zap.Int64("version", r.octx.Version))...)
	}
	if err != nil {
		return stageErr(StageSave, ErrPersistence, fmt.Errorf("save context %s: %w", r.octx.ID, err))
	}
	return nil
}

func (p *Pipeline) buildRecord(r *run) *decision.AIDecision {
	denied := r.denied
	if denied == nil {
		denied = []string{}
	}
	return &decision.AIDecision{
		ID:                r.decisionID,
		ContextID:         r.octx.ID,
		ConversationID:    r.octx.ConversationID,
		TenantID:          r.req.TenantID,
		UserID:            r.req.UserID,
		Intent:            r.intent,
		Decision:          r.decision,
		ExecutedActions:   r.results,
		ResponseText:      r.reply.Text,
		TokensUsed:        r.usage.Tokens,
		ModelUsed:         r.usage.Model,
		ProcessingTime:    r.elapsed,
		PermissionsDenied: denied,
		CreatedAt:         p.now().UTC(),
	}
}

func (p *Pipeline) buildResponse(r *run, decisionID string) *Response {
	actions := make([]ActionSummary, 0, len(r.results))
	for _, res := range r.results {
		actions = append(actions, ActionSummary{
			FunctionName:  res.FunctionName,
			Success:       res.Success,
			Error:         res.Error,
			ExecutionTime: res.ExecutionTime,
		})
	}
	denied := r.denied
	if denied == nil {
		denied = []string{}
	}
	return &Response{
		ConversationID: r.octx.ConversationID,
		ContextID:      r.octx.ID,
		DecisionID:     decisionID,
		Text:           r.reply.Text,
		Actions:        actions,
		Metadata: ResponseMetadata{
			IntentType:        r.intent.Type,
			IntentSubType:     r.intent.SubType,
			Confidence:        r.intent.Confidence,
			ProcessingTime:    r.elapsed,
			TokensUsed:        r.usage.Tokens,
			ModelUsed:         r.usage.Model,
			Permissions:       r.granted,
			PermissionsDenied: denied,
		},
	}
}
