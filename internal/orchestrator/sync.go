package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
)

// ProcessSync processes a message for a caller that waits on the result.
// A conversation is created when the request names none. The inbound and
// outbound messages are written to conversation history before returning;
// either write failing fails the call with ErrHistory.
func (p *Pipeline) ProcessSync(ctx context.Context, req Request) (*Response, error) {
	if p.conversations == nil {
		return nil, stageErr(StageConversation, ErrNotConfigured, errMissing("conversations"))
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.ConversationID == "" {
		conv, err := p.conversations.Create(ctx, ConversationKey{
			UserID:    req.UserID,
			ChannelID: req.ChannelID,
			TenantID:  req.TenantID,
		})
		if err != nil {
			return nil, stageErr(StageConversation, ErrConversation, err)
		}
		req.ConversationID = conv.ID
	}

	resp, err := p.ProcessMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := p.appendHistory(ctx, req.ConversationID, req.Message, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// appendHistory writes the inbound message (when it has content) and the
// reply to the conversation history, in that order.
func (p *Pipeline) appendHistory(ctx context.Context, conversationID string, in InboundMessage, resp *Response) error {
	now := p.now().UTC()
	if in.Content != "" {
		if err := p.conversations.AppendMessage(ctx, conversationID, HistoryMessage{
			Direction: conversation.DirectionInbound,
			Content:   in.Content,
			Metadata:  in.Metadata,
			CreatedAt: now,
		}); err != nil {
			return stageErr(StageHistory, ErrHistory, err)
		}
	}

	if err := p.conversations.AppendMessage(ctx, conversationID, HistoryMessage{
		Direction: conversation.DirectionOutbound,
		Content:   resp.Text,
		Metadata: map[string]any{
			"decision_id": resp.DecisionID,
			"intent_type": resp.Metadata.IntentType,
		},
		CreatedAt: now,
	}); err != nil {
		return stageErr(StageHistory, ErrHistory, err)
	}

	p.logger.Debug("conversation history updated",
		append(logging.ContextFields(ctx), zap.String("conversation_id", conversationID))...)
	return nil
}
