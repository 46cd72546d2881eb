package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// Defaults for subjects.
const (
	DefaultInboundSubject = "channels.inbound"
	DefaultOutboundPrefix = "channels.outbound"
	DefaultQueueGroup     = "ledgerd"
	defaultChannel        = "default"
)

// RegistrationPrompt is sent to senders without a registered channel.
const RegistrationPrompt = "Hi! This number isn't linked to an account yet. " +
	"Sign in to the web app and add it under Settings > Channels to start chatting."

// Envelope is the outbound wire format read by channel gateways.
type Envelope struct {
	ID       string         `json:"id"`
	To       string         `json:"to"`
	Channel  string         `json:"channel"`
	Text     string         `json:"text"`
	Kind     string         `json:"kind"`
	Metadata map[string]any `json:"metadata,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Envelope kinds.
const (
	KindReply        = "reply"
	KindRegistration = "registration_prompt"
)

// NATSMessenger publishes outbound messages to the channel bus.
type NATSMessenger struct {
	nc     *nats.Conn
	prefix string
	now    func() time.Time
}

// NewNATSMessenger creates a messenger publishing under prefix. An empty
// prefix uses DefaultOutboundPrefix.
func NewNATSMessenger(nc *nats.Conn, prefix string) *NATSMessenger {
	if prefix == "" {
		prefix = DefaultOutboundPrefix
	}
	return &NATSMessenger{nc: nc, prefix: prefix, now: time.Now}
}

// SendMessage publishes msg for destination. The message channel falls back
// to the scheme of destination ("whatsapp:+1555..." -> "whatsapp").
func (m *NATSMessenger) SendMessage(ctx context.Context, destination string, msg orchestrator.OutboundMessage) (*orchestrator.DeliveryResult, error) {
	env := Envelope{
		ID:       uuid.NewString(),
		To:       destination,
		Channel:  msg.Channel,
		Text:     msg.Text,
		Kind:     KindReply,
		Metadata: msg.Metadata,
		SentAt:   m.now().UTC(),
	}
	if err := m.publish(ctx, &env); err != nil {
		return nil, err
	}
	return &orchestrator.DeliveryResult{MessageID: env.ID, Status: "published"}, nil
}

// SendRegistrationPrompt asks an unknown sender to link their number.
func (m *NATSMessenger) SendRegistrationPrompt(ctx context.Context, destination string) error {
	env := Envelope{
		ID:     uuid.NewString(),
		To:     destination,
		Text:   RegistrationPrompt,
		Kind:   KindRegistration,
		SentAt: m.now().UTC(),
	}
	return m.publish(ctx, &env)
}

func (m *NATSMessenger) publish(ctx context.Context, env *Envelope) error {
	if env.Channel == "" {
		env.Channel = channelOf(env.To)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	subject := m.prefix + "." + subjectToken(env.Channel)
	if err := m.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish outbound message: %w", err)
	}
	if err := flush(ctx, m.nc); err != nil {
		return fmt.Errorf("flush outbound message: %w", err)
	}
	return nil
}

const flushTimeout = 5 * time.Second

// flush waits for the server to acknowledge published messages. Contexts
// without a deadline fall back to flushTimeout.
func flush(ctx context.Context, nc *nats.Conn) error {
	if _, ok := ctx.Deadline(); ok {
		return nc.FlushWithContext(ctx)
	}
	return nc.FlushTimeout(flushTimeout)
}

func channelOf(destination string) string {
	if i := strings.Index(destination, ":"); i > 0 {
		return destination[:i]
	}
	return defaultChannel
}

// subjectToken makes s safe for use as a single subject token.
func subjectToken(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, strings.ToLower(s))
	if s == "" {
		return defaultChannel
	}
	return s
}

var _ orchestrator.Messenger = (*NATSMessenger)(nil)
