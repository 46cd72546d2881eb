package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
)

// VerificationReminder is sent to senders whose channel is not verified yet.
const VerificationReminder = "Your number is registered but not verified yet. " +
	"Please complete verification from the web app, then message us again."

// jobIDKey tags an inbound message with the job that delivered it.
const jobIDKey = "job_id"

// ProcessAsync handles a queued channel message. Unknown and unverified
// senders are answered with a prompt and nil is returned without creating a
// context. Delivery failures are returned so the job can be retried.
func (p *Pipeline) ProcessAsync(ctx context.Context, job Job) (err error) {
	if p.messenger == nil || p.channels == nil || p.conversations == nil {
		return stageErr(StageChannel, ErrNotConfigured, errMissing("messenger, channels and conversations"))
	}

	ctx, span := p.tracer.Start(ctx, "orchestrator.ProcessAsync", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("channel.type", job.Message.Channel),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	from := job.Message.From
	fields := []zap.Field{zap.String("job_id", job.ID), logging.MaskedIdentity("from", from)}

	ch, err := p.channels.FindByExternalID(ctx, from)
	if err != nil {
		return stageErr(StageChannel, ErrChannelLookup, err)
	}

	if ch == nil {
		p.logger.Info("message from unregistered sender", fields...)
		p.metrics.recordMessage("unregistered")
		if err := p.messenger.SendRegistrationPrompt(ctx, from); err != nil {
			return stageErr(StageDeliver, ErrDelivery, err)
		}
		return nil
	}

	ctx = logging.WithCorrelation(ctx, logging.Correlation{TenantID: ch.TenantID, UserID: ch.UserID})

	if !ch.IsVerified {
		p.logger.Info("message from unverified channel", append(fields, zap.String("channel_id", ch.ID))...)
		p.metrics.recordMessage("unverified")
		if _, err := p.messenger.SendMessage(ctx, from, OutboundMessage{
			Text:    VerificationReminder,
			Channel: job.Message.Channel,
		}); err != nil {
			return stageErr(StageDeliver, ErrDelivery, err)
		}
		return nil
	}

	conv, err := p.conversations.ResolveOrCreate(ctx, ConversationKey{
		UserID:    ch.UserID,
		ChannelID: ch.ID,
		TenantID:  ch.TenantID,
	})
	if err != nil {
		return stageErr(StageConversation, ErrConversation, err)
	}

	in := InboundMessage{
		Content: job.Message.Body,
		Metadata: map[string]any{
			"channel":             job.Message.Channel,
			"external_message_id": job.Message.ExternalMessageID,
			jobIDKey:              job.ID,
		},
	}

	resp, err := p.priorReply(ctx, conv.ID, job.ID)
	if err != nil {
		return err
	}
	if resp != nil {
		p.logger.Info("job already processed, redelivering reply",
			append(fields, zap.String("decision_id", resp.DecisionID))...)
		p.metrics.recordMessage("redelivered")
	} else {
		resp, err = p.ProcessMessage(ctx, Request{
			ConversationID: conv.ID,
			UserID:         ch.UserID,
			ChannelID:      ch.ID,
			TenantID:       ch.TenantID,
			Message:        in,
		})
		if err != nil {
			return err
		}
	}

	if _, err := p.messenger.SendMessage(ctx, from, OutboundMessage{
		Text:    resp.Text,
		Channel: job.Message.Channel,
		Metadata: map[string]any{
			"conversation_id": resp.ConversationID,
			"decision_id":     resp.DecisionID,
		},
	}); err != nil {
		p.logger.Error("reply delivery failed", append(logging.ContextFields(ctx), append(fields, zap.Error(err))...)...)
		return stageErr(StageDeliver, ErrDelivery, fmt.Errorf("deliver reply for job %s: %w", job.ID, err))
	}

	return p.appendHistory(ctx, conv.ID, in, resp)
}

// priorReply returns the reply an earlier attempt of the job already saved,
// so a retried job is delivered again without being processed again. It
// returns nil when the job's inbound message is not in the context window.
func (p *Pipeline) priorReply(ctx context.Context, conversationID, jobID string) (*Response, error) {
	if jobID == "" {
		return nil, nil
	}
	octx, err := p.contexts.GetByConversation(ctx, conversationID)
	if err != nil {
		return nil, stageErr(StageContext, ErrPersistence, err)
	}
	if octx == nil {
		return nil, nil
	}

	msgs := octx.RecentMessages
	for i := len(msgs) - 2; i >= 0; i-- {
		if msgs[i].Direction != conversation.DirectionInbound || metaString(msgs[i].Metadata, jobIDKey) != jobID {
			continue
		}
		reply := msgs[i+1]
		if reply.Direction != conversation.DirectionOutbound {
			return nil, nil
		}
		return &Response{
			ConversationID: octx.ConversationID,
			ContextID:      octx.ID,
			DecisionID:     metaString(reply.Metadata, "decision_id"),
			Text:           reply.Content,
			Actions:        []ActionSummary{},
			Metadata:       ResponseMetadata{IntentType: metaString(reply.Metadata, "intent_type")},
		}, nil
	}
	return nil, nil
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
